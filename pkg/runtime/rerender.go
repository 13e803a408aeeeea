package runtime

import (
	"github.com/loomui/loom/pkg/element"
)

// enqueue adds a fiber to the pending re-render queue and schedules a batch
// if none is in flight. The batch runs as the next job on the runtime
// goroutine, so changes arriving while a render is in progress fold into
// the following batch rather than interleaving partial commits.
func (rt *Runtime) enqueue(f *fiber) {
	rt.renderQueue[f] = struct{}{}
	if rt.batchScheduled {
		return
	}
	rt.batchScheduled = true
	rt.post(rt.flushRenderQueue)
}

// flushRenderQueue snapshots and clears the queue, then rebuilds a fresh
// work-in-progress root mirroring currentRoot and re-enters the scheduler
// from the root, so the whole tree reconciles against the cell values at
// batch time. Multiple queued fibers are handled by the single pass.
func (rt *Runtime) flushRenderQueue() {
	rt.batchScheduled = false
	queued := len(rt.renderQueue)
	rt.renderQueue = make(map[*fiber]struct{})
	if queued == 0 || rt.currentRoot == nil {
		return
	}
	rt.metrics.observeBatch(queued)

	rt.wipRoot = &fiber{
		kind:          element.KindHost,
		tag:           rt.currentRoot.tag,
		node:          rt.currentRoot.node,
		childElements: rt.currentRoot.childElements,
		alternate:     rt.currentRoot,
	}
	rt.nextUnit = rt.wipRoot
	rt.deletions = nil
	rt.renderPass("batch")
}

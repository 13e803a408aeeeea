package element

// Comment-marker vocabulary of the serialized markup contract. A suspense
// boundary's output is wrapped in one of two marker pairs so the hydration
// walker can tell server-resolved content from a server-side fallback.
const (
	// MarkerResolved opens a boundary whose content resolved within the
	// server's time-box.
	MarkerResolved = "sus:resolved"

	// MarkerFallback opens a boundary the server rendered as fallback.
	MarkerFallback = "sus:fallback"

	// MarkerClose closes either marker pair.
	MarkerClose = "/sus"
)

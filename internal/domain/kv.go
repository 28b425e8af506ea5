package domain

// KV is the named-slot view of local persistent storage. Values are
// JSON-encoded by implementations; slot names are flat strings such as
// "bookmarks/private".
type KV interface {
	// Get decodes the slot into v. The bool reports whether the slot exists.
	Get(slot string, v any) (bool, error)

	Set(slot string, v any) error
	Delete(slot string) error
}

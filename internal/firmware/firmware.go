// Package firmware is a reference reader for the serialized trie formats.
// It mirrors what the keyboard firmware does at runtime: walk the keystroke
// history newest to oldest through the blob, fire the deepest match, and
// rewrite the screen with backspaces plus the completion.
//
// It exists so tests can validate the encoders against observable behavior
// instead of against their own byte math.
package firmware

// Match is one decoded match record.
type Match struct {
	Func       uint8
	Backspaces int
	Completion []byte

	// Offset of the four-byte record inside the trie blob (v3_2), used to
	// verify chain links.
	Offset int
}

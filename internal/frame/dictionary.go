package frame

// Dictionary interns frames into dense integer ids. The zero value is ready
// to use. It is not safe for concurrent use.
type Dictionary struct {
	ids    map[Frame]int
	frames []Frame
}

func NewDictionary() *Dictionary {
	return &Dictionary{ids: make(map[Frame]int)}
}

// Intern returns the id of f, adding it if it was never seen.
func (d *Dictionary) Intern(f Frame) int {
	if d.ids == nil {
		d.ids = make(map[Frame]int)
	}
	if id, ok := d.ids[f]; ok {
		return id
	}
	id := len(d.frames)
	d.ids[f] = id
	d.frames = append(d.frames, f)
	return id
}

// Lookup returns the id of f without interning it.
func (d *Dictionary) Lookup(f Frame) (int, bool) {
	id, ok := d.ids[f]
	return id, ok
}

// Frame returns the frame for id. The second value is false for unknown ids.
func (d *Dictionary) Frame(id int) (Frame, bool) {
	if id < 0 || id >= len(d.frames) {
		return "", false
	}
	return d.frames[id], true
}

// Frames returns all interned frames indexed by id.
func (d *Dictionary) Frames() []Frame {
	return d.frames
}

func (d *Dictionary) Len() int {
	return len(d.frames)
}

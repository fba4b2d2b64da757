package minipar

import "fmt"

// noParent marks the root frame of the arena.
const noParent = -1

// frame is a single scope of bindings. Frames never hold pointers to each
// other; parent is an index into the owning scope's arena.
type frame struct {
	vars         map[string]Value
	parent       int
	callBoundary bool
}

// scope is an arena of frames and the index of the innermost live frame.
// Frame 0 is always the global frame.
type scope struct {
	frames []frame
	cur    int
}

// mark records enough of the arena to undo a push.
type mark struct {
	cur  int
	size int
}

func newScope() *scope {
	return &scope{
		frames: []frame{{
			vars:         make(map[string]Value),
			parent:       noParent,
			callBoundary: true,
		}},
		cur: 0,
	}
}

// push enters a block frame nested in the current frame.
func (s *scope) push() mark {
	m := mark{cur: s.cur, size: len(s.frames)}
	s.frames = append(s.frames, frame{
		vars:   make(map[string]Value),
		parent: s.cur,
	})
	s.cur = len(s.frames) - 1
	return m
}

// pushCall enters a function call frame. Call frames see the global frame
// but not the frames of their caller.
func (s *scope) pushCall() mark {
	m := mark{cur: s.cur, size: len(s.frames)}
	s.frames = append(s.frames, frame{
		vars:         make(map[string]Value),
		parent:       0,
		callBoundary: true,
	})
	s.cur = len(s.frames) - 1
	return m
}

// pop restores the arena to m. Frames are strictly nested, so truncating
// the arena releases exactly the frames pushed since m was taken.
func (s *scope) pop(m mark) {
	for i := m.size; i < len(s.frames); i++ {
		s.frames[i] = frame{}
	}
	s.frames = s.frames[:m.size]
	s.cur = m.cur
}

// Get looks a name up from the innermost frame outwards.
func (s *scope) Get(name string) (Value, bool) {
	for i := s.cur; i != noParent; i = s.frames[i].parent {
		if v, ok := s.frames[i].vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set updates the nearest existing binding of name. If there is none, the
// binding is created in the nearest call-boundary frame, so a variable
// first assigned inside an if or while body outlives the block.
func (s *scope) Set(name string, val Value) {
	boundary := noParent
	for i := s.cur; i != noParent; i = s.frames[i].parent {
		f := s.frames[i]
		if _, ok := f.vars[name]; ok {
			f.vars[name] = val
			return
		}
		if boundary == noParent && f.callBoundary {
			boundary = i
		}
	}
	s.frames[boundary].vars[name] = val
}

// Declare binds name in the innermost frame, shadowing outer bindings.
func (s *scope) Declare(name string, val Value) {
	s.frames[s.cur].vars[name] = val
}

// SetGlobal binds name in the global frame.
func (s *scope) SetGlobal(name string, val Value) {
	s.frames[0].vars[name] = val
}

// clone deep-copies the arena. Values are immutable, so copying the
// binding maps is enough to isolate the copy from the original. The cost
// is proportional to the number of live bindings.
func (s *scope) clone() *scope {
	frames := make([]frame, len(s.frames))
	for i, f := range s.frames {
		vars := make(map[string]Value, len(f.vars))
		for k, v := range f.vars {
			vars[k] = v
		}
		frames[i] = frame{
			vars:         vars,
			parent:       f.parent,
			callBoundary: f.callBoundary,
		}
	}
	return &scope{
		frames: frames,
		cur:    s.cur,
	}
}

func (s *scope) depth() int {
	d := 0
	for i := s.cur; i != noParent; i = s.frames[i].parent {
		d++
	}
	return d
}

// String dumps the visible frames, innermost first, for debugging.
func (s *scope) String() string {
	entries := ""
	for i := s.cur; i != noParent; i = s.frames[i].parent {
		entries += fmt.Sprintf("\n  frame %d ->", i)
		for k, v := range s.frames[i].vars {
			entries += fmt.Sprintf(" %s: %s", k, v)
		}
	}
	return fmt.Sprintf("{%d frames visible}%s", s.depth(), entries)
}

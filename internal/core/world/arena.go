package world

// handle addresses a component slot. The generation makes handles of removed
// components stale instead of aliasing whatever reuses the slot.
type handle struct {
	index uint32
	gen   uint32
}

type slot struct {
	gen       uint32
	component *Component
}

// arena is a slab of components with a free list of slot indices.
type arena struct {
	slots []slot
	free  []uint32
	live  int
}

func (a *arena) insert(c *Component) handle {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, slot{})
	}
	s := &a.slots[index]
	s.gen++
	s.component = c
	a.live++
	return handle{index: index, gen: s.gen}
}

// get returns the component behind h, or nil when h is stale.
func (a *arena) get(h handle) *Component {
	if int(h.index) >= len(a.slots) {
		return nil
	}
	s := a.slots[h.index]
	if s.gen != h.gen {
		return nil
	}
	return s.component
}

func (a *arena) remove(h handle) {
	if a.get(h) == nil {
		panic("world: removing stale component handle")
	}
	s := &a.slots[h.index]
	s.component = nil
	s.gen++
	a.free = append(a.free, h.index)
	a.live--
}

func (a *arena) len() int {
	return a.live
}

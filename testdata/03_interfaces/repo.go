package repo

// Repository stores entities.
type Repository interface {
	// Find looks up an entity.
	//sig:Cached(ttl=60)
	Find(id int) (*Entity, error)
	Save(e *Entity) error
	Closer
}

type Closer interface {
	Close() error
}

type Entity struct {
	ID int
}

type memory struct {
	items map[int]*Entity
}

func (m *memory) Find(id int) (*Entity, error) { return m.items[id], nil }

func (m *memory) Save(e *Entity) error {
	m.items[e.ID] = e
	return nil
}

func (m *memory) Close() error { return nil }

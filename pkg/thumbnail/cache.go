package thumbnail

import (
	"container/list"
	"image"
	"sync"

	"github.com/kass/go-geo-tiler/pkg/models"
)

// lru is a size bounded thumbnail cache keyed by item
type lru struct {
	mu   sync.Mutex
	cap  int
	lst  *list.List
	dict map[models.ItemID]*list.Element
}

type entry struct {
	id  models.ItemID
	img image.Image
}

func newLRU(capacity int) *lru {
	return &lru{cap: capacity, lst: list.New(), dict: make(map[models.ItemID]*list.Element)}
}

func (c *lru) Get(id models.ItemID) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[id]; ok {
		c.lst.MoveToFront(e)
		return e.Value.(entry).img, true
	}
	return nil, false
}

func (c *lru) Set(id models.ItemID, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[id]; ok {
		e.Value = entry{id: id, img: img}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[id] = c.lst.PushFront(entry{id: id, img: img})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(entry).id)
		c.lst.Remove(back)
	}
}

func (c *lru) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

package orderbook

// bookSide is the price level index of one side of the book.
type bookSide struct {
	side   Side
	levels *RBTree
}

func newBookSide(side Side) *bookSide {
	return &bookSide{side: side, levels: NewRBTree()}
}

// best is the highest bid or the lowest ask.
func (s *bookSide) best() *PriceLevel {
	if s.side == Buy {
		return s.levels.Max()
	}
	return s.levels.Min()
}

func (s *bookSide) levelFor(price int64, queueID func() uint32) *PriceLevel {
	return s.levels.LevelFor(price, func() *PriceLevel {
		return newPriceLevel(price, queueID())
	})
}

func (s *bookSide) deleteIfEmpty(lvl *PriceLevel) {
	if lvl.Empty() {
		s.levels.Delete(lvl.Price)
	}
}

// walk visits levels best to worst.
func (s *bookSide) walk(fn func(*PriceLevel) bool) {
	if s.side == Buy {
		s.levels.Descend(fn)
		return
	}
	s.levels.Ascend(fn)
}

package parallel

// Band is a half-open row range [Y0, Y1).
type Band struct {
	Y0, Y1 int
}

// Bands splits height rows into at most n contiguous bands of nearly equal
// size. It returns nil for an empty range.
func Bands(height, n int) []Band {
	if height <= 0 {
		return nil
	}
	n = min(max(n, 1), height)
	bands := make([]Band, 0, n)
	y := 0
	for i := range n {
		rows := height / n
		if i < height%n {
			rows++
		}
		bands = append(bands, Band{Y0: y, Y1: y + rows})
		y += rows
	}
	return bands
}

// Rows calls fn for every row band of height, on p when p is non-nil and
// inline otherwise. Bands never overlap, so fn may write rows of its band
// without locking.
func Rows(p *WorkerPool, height int, fn func(b Band)) {
	if p == nil || p.Workers() == 1 {
		if height > 0 {
			fn(Band{Y0: 0, Y1: height})
		}
		return
	}
	bands := Bands(height, p.Workers()*2)
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b) }
	}
	p.ExecuteAll(work)
}

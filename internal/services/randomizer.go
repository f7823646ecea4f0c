package services

// Randomizer is a Mulberry32 generator: a counter advanced by a fixed odd
// increment and mixed into 32 output bits. The stream depends only on the seed
// and the number of draws, so a persisted seed reproduces trial order anywhere.
type Randomizer struct {
	state uint32
}

func NewRandomizer(seed uint32) *Randomizer {
	return &Randomizer{state: seed}
}

// Uint32 returns the next raw 32-bit draw.
func (r *Randomizer) Uint32() uint32 {
	r.state += 0x6D2B79F5
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return t ^ (t >> 14)
}

// Float64 returns the next draw in [0, 1).
func (r *Randomizer) Float64() float64 {
	return float64(r.Uint32()) / 4294967296.0
}

// Intn returns a draw in [0, n) as floor(Float64()*n). n must be positive.
func (r *Randomizer) Intn(n int) int {
	return int(r.Float64() * float64(n))
}

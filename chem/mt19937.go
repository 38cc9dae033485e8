package chem

// mt19937 is the 32-bit Mersenne Twister seeded like numpy's legacy
// RandomState(seed), so MinHash permutations match tables generated by the
// reference Python encoder.
type mt19937 struct {
	state [624]uint32
	index int
}

func newMT19937(seed uint32) *mt19937 {
	mt := &mt19937{index: 624}
	mt.state[0] = seed
	for i := 1; i < 624; i++ {
		prev := mt.state[i-1]
		mt.state[i] = 1812433253*(prev^(prev>>30)) + uint32(i)
	}
	return mt
}

func (mt *mt19937) twist() {
	const upper, lower = 0x80000000, 0x7fffffff
	for i := 0; i < 624; i++ {
		y := mt.state[i]&upper | mt.state[(i+1)%624]&lower
		v := mt.state[(i+397)%624] ^ (y >> 1)
		if y&1 != 0 {
			v ^= 0x9908b0df
		}
		mt.state[i] = v
	}
	mt.index = 0
}

func (mt *mt19937) uint32() uint32 {
	if mt.index >= 624 {
		mt.twist()
	}
	y := mt.state[mt.index]
	mt.index++
	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

// boundedUint32 draws from [low, high) by masked rejection sampling, the way
// RandomState.randint does for 32-bit integer ranges.
func (mt *mt19937) boundedUint32(low, high uint32) uint32 {
	rng := high - 1 - low
	if rng == 0 {
		return low
	}
	mask := rng
	mask |= mask >> 1
	mask |= mask >> 2
	mask |= mask >> 4
	mask |= mask >> 8
	mask |= mask >> 16
	for {
		if v := mt.uint32() & mask; v <= rng {
			return low + v
		}
	}
}

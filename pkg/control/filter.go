// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

// Filter smooths a stream of samples into a process variable.
type Filter interface {
	Process(sample float64)
	Output() float64
	Reset()
}

// ExponentialFilter is a first-order low-pass filter:
// output += alpha * (sample - output).
type ExponentialFilter struct {
	alpha  float64
	output float64
	primed bool
}

// NewExponentialFilter creates a filter with smoothing factor alpha in (0, 1].
// Values outside that range are clamped.
func NewExponentialFilter(alpha float64) *ExponentialFilter {
	return &ExponentialFilter{alpha: clamp(alpha, 0, 1)}
}

// Process blends a new sample into the output. The first sample seeds it.
func (f *ExponentialFilter) Process(sample float64) {
	if !f.primed {
		f.output = sample
		f.primed = true
		return
	}
	f.output += f.alpha * (sample - f.output)
}

// Output returns the filtered value.
func (f *ExponentialFilter) Output() float64 {
	return f.output
}

// Reset clears the filter; the next sample seeds it again.
func (f *ExponentialFilter) Reset() {
	f.output = 0
	f.primed = false
}

// MedianFilter returns the median of the last N samples.
type MedianFilter struct {
	window  []float64
	scratch []float64
	next    int
	count   int
	output  float64
}

// NewMedianFilter creates a median filter over size samples. Even sizes are
// rounded up so the median is always a sample.
func NewMedianFilter(size int) *MedianFilter {
	if size < 1 {
		size = 1
	}
	if size%2 == 0 {
		size++
	}
	return &MedianFilter{
		window:  make([]float64, size),
		scratch: make([]float64, size),
	}
}

// Process stores a sample and recomputes the median of the filled window.
func (f *MedianFilter) Process(sample float64) {
	f.window[f.next] = sample
	f.next = (f.next + 1) % len(f.window)
	if f.count < len(f.window) {
		f.count++
	}

	// Insertion sort into scratch, no allocation on the interrupt path
	n := f.count
	copy(f.scratch[:n], f.window[:n])
	for i := 1; i < n; i++ {
		v := f.scratch[i]
		j := i - 1
		for j >= 0 && f.scratch[j] > v {
			f.scratch[j+1] = f.scratch[j]
			j--
		}
		f.scratch[j+1] = v
	}

	if n%2 == 1 {
		f.output = f.scratch[n/2]
	} else {
		f.output = (f.scratch[n/2-1] + f.scratch[n/2]) / 2
	}
}

// Output returns the current median.
func (f *MedianFilter) Output() float64 {
	return f.output
}

// Reset empties the window.
func (f *MedianFilter) Reset() {
	f.next = 0
	f.count = 0
	f.output = 0
}

// Chain feeds each stage's output into the next stage.
type Chain []Filter

// Process runs the sample through every stage.
func (c Chain) Process(sample float64) {
	for _, f := range c {
		f.Process(sample)
		sample = f.Output()
	}
}

// Output returns the last stage's value.
func (c Chain) Output() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[len(c)-1].Output()
}

// Reset resets every stage.
func (c Chain) Reset() {
	for _, f := range c {
		f.Reset()
	}
}

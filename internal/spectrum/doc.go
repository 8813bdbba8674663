// Package spectrum turns blocks of audio samples into a small vector of
// perceptually scaled frequency magnitudes and keeps the published vector.
//
// An Analyzer windows each block (Hann), takes the magnitude of the real
// FFT, samples it at logarithmically spaced indices, normalizes by the block
// maximum and compresses with a power law. A Store merges successive vectors
// with exponential smoothing and hands out consistent copies to readers.
package spectrum

package registration

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// fft2D performs a 2D Fast Fourier Transform on row-major complex data of
// ny rows and nx columns. Rows are transformed first, then columns.
//
// When inverse is true the unnormalized inverse transform is computed, so
// fft2D(fft2D(x, false), true) equals x scaled by ny*nx.
func fft2D(data []complex128, ny, nx int, inverse bool) []complex128 {
	result := make([]complex128, len(data))
	copy(result, data)

	rowFFT := fourier.NewCmplxFFT(nx)
	row := make([]complex128, nx)
	for y := 0; y < ny; y++ {
		src := result[y*nx : (y+1)*nx]
		if inverse {
			rowFFT.Sequence(row, src)
		} else {
			rowFFT.Coefficients(row, src)
		}
		copy(src, row)
	}

	colFFT := fourier.NewCmplxFFT(ny)
	colIn := make([]complex128, ny)
	colOut := make([]complex128, ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			colIn[y] = result[y*nx+x]
		}
		if inverse {
			colFFT.Sequence(colOut, colIn)
		} else {
			colFFT.Coefficients(colOut, colIn)
		}
		for y := 0; y < ny; y++ {
			result[y*nx+x] = colOut[y]
		}
	}

	return result
}

// toComplex widens real samples into a complex slice
func toComplex(data []float64) []complex128 {
	out := make([]complex128, len(data))
	for i, v := range data {
		out[i] = complex(v, 0)
	}
	return out
}

// signedIndex maps a circular index (a DFT bin or a correlation lag) to
// its signed value in (-n/2, n/2]
func signedIndex(k, n int) int {
	if k > n/2 {
		return k - n
	}
	return k
}

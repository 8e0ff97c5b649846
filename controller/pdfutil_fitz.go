//go:build cgo
// +build cgo

package controller

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// renderPDFToPNGs rasterizes up to maxPages pages of the PDF into PNG files
// under outDir. Returns the page sizes in points and the written paths.
func renderPDFToPNGs(pdfPath, outDir string, dpi, maxPages int) (sizes [][2]float64, pngPaths []string, err error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open pdf: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}
	base := filepath.Base(pdfPath)
	for n := 0; n < pages; n++ {
		img, err := doc.ImageDPI(n, float64(dpi))
		if err != nil {
			return nil, nil, fmt.Errorf("cannot render page %d: %w", n, err)
		}
		bounds := img.Bounds()
		sizes = append(sizes, [2]float64{
			float64(bounds.Dx()) * 72.0 / float64(dpi),
			float64(bounds.Dy()) * 72.0 / float64(dpi),
		})
		outPath := filepath.Join(outDir, fmt.Sprintf("%s-%d.png", base, n))
		if err := savePNG(outPath, img); err != nil {
			return nil, nil, err
		}
		pngPaths = append(pngPaths, outPath)
	}
	return sizes, pngPaths, nil
}

func savePNG(path string, m image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, m)
}

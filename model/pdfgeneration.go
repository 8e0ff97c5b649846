package model

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	api "github.com/speedata/publisher-api"
)

func attachFile(p *api.PublishRequest, filename string, destFilename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	pf := api.PublishFile{Filename: destFilename, Contents: data}
	p.Files = append(p.Files, pf)
	return nil
}

func ensureDir(dirName string) error {
	return os.MkdirAll(dirName, 0755)
}

// CreateInvoicePDF renders the invoice document. The XML rendition is
// expected at xmlpath and the PDF is written to pdfpath. Layout, fonts, and
// paper size live entirely in the layout assets; this code only ships the
// already-reconciled data to the publishing server.
func (s *Store) CreateInvoicePDF(inv *Invoice, xmlpath string, pdfpath string, logger *slog.Logger) error {
	ep, err := api.NewEndpoint(s.Config.PublishingServerUsername, s.Config.PublishingServerAddress)
	if err != nil {
		return err
	}
	p := ep.NewPublishRequest()

	if err = attachFile(p, xmlpath, "data.xml"); err != nil {
		return err
	}

	p.Version = "5.1.25"

	assetsDir := filepath.Join(s.Config.Basedir, "assets")
	if err = ensureDir(assetsDir); err != nil {
		return err
	}

	files, err := os.ReadDir(assetsDir)
	if err != nil {
		return err
	}
	hasLayout := false
	reject := map[string]bool{
		".DS_Store":     true,
		"publisher.cfg": true,
	}
	for _, file := range files {
		if file.IsDir() || reject[file.Name()] {
			continue
		}
		if file.Name() == "layout.xml" {
			hasLayout = true
		}
		fullPath := filepath.Join(assetsDir, file.Name())
		logger.Debug("attaching asset", "file", fullPath)
		if err := attachFile(p, fullPath, file.Name()); err != nil {
			return err
		}
	}
	if !hasLayout {
		genericLayout := filepath.Join(s.Config.Basedir, "assets", "generic", "layout.xml")
		if err := attachFile(p, genericLayout, "layout.xml"); err != nil {
			return err
		}
	}

	resp, err := ep.Publish(p)
	if err != nil {
		return err
	}

	ps, err := resp.Wait()
	if err != nil {
		return err
	}

	if ps.Errors > 0 {
		logger.Error("PDF generation done", "invoice", inv.Number, "errors", ps.Errors, "finishedAt", ps.Finished.Format(time.Stamp))
	} else {
		logger.Debug("PDF generation done", "invoice", inv.Number, "errors", ps.Errors, "finishedAt", ps.Finished.Format(time.Stamp))
	}
	for _, e := range ps.Errormessages {
		logger.Error("error during PDF generation", "message", e.Error)
	}

	f, err := os.Create(pdfpath)
	if err != nil {
		return err
	}
	defer f.Close()
	return resp.GetPDF(f)
}

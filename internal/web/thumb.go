package web

import (
	"bytes"
	"image"
	"image/jpeg"
	"net/http"
	"os"

	// decoders
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const thumbMaxEdge = 256

// HandleThumb renders a JPEG thumbnail for the management UI grid. The
// thumbnail is generated per request; nothing is cached under the upload
// root.
func (h *Handlers) HandleThumb(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	filename := r.URL.Query().Get("filename")

	abs, err := h.store.FilePath(folder, filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid name")
		return
	}
	st, err := os.Stat(abs)
	if err != nil || st.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	b, err := makeThumb(abs, thumbMaxEdge)
	if err != nil {
		writeError(w, http.StatusNotFound, "not a decodable image")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(b)
}

func makeThumb(absPath string, max int) ([]byte, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, os.ErrInvalid
	}

	nw, nh := w, h
	if w > h {
		if w > max {
			nw = max
			nh = int(float64(h) * (float64(max) / float64(w)))
		}
	} else {
		if h > max {
			nh = max
			nw = int(float64(w) * (float64(max) / float64(h)))
		}
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 82}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

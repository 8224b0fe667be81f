package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayusman/airdeck/internal/app"
	"github.com/ayusman/airdeck/internal/overlay"
	"gocv.io/x/gocv"
)

// streamInterval paces the preview at about 15 FPS.
const streamInterval = 66 * time.Millisecond

// StreamHandler serves the presenter camera preview as MJPEG, mirrored and
// annotated with the arm keypoints of the latest estimate.
type StreamHandler struct {
	ctrl *app.Controller
}

// NewStreamHandler creates a StreamHandler over the detection controller.
func NewStreamHandler(ctrl *app.Controller) *StreamHandler {
	return &StreamHandler{ctrl: ctrl}
}

// ServeHTTP streams frames until the client goes away. Pass overlay=0 to
// get the bare mirrored image.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	drawOverlay := r.URL.Query().Get("overlay") != "0"

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		jpeg, ok := h.render(drawOverlay)
		if !ok {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func (h *StreamHandler) render(drawOverlay bool) ([]byte, bool) {
	img, kf, ok := h.ctrl.Snapshot()
	defer img.Close()
	if !ok {
		return nil, false
	}

	overlay.Mirror(&img)
	if drawOverlay && !kf.Empty() {
		m := overlay.NewMapper(kf.Width, kf.Height, img.Cols(), img.Rows())
		overlay.Draw(&img, m.Build(kf))
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, false
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, true
}

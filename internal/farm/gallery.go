package farm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"smartfarm-go-panel/internal/api"
)

// GalleryImage is a plant photo denormalized with its device's name and
// location. Thumbnail and full URLs alias the backend image path; the
// backend serves one size.
type GalleryImage struct {
	ImageID        int    `json:"image_id"`
	DeviceID       int    `json:"device_id"`
	ImagePath      string `json:"image_path"`
	CapturedAt     string `json:"captured_at"`
	DeviceName     string `json:"device_name,omitempty"`
	DeviceLocation string `json:"device_location,omitempty"`
	ThumbnailURL   string `json:"thumbnail_url"`
	FullURL        string `json:"full_url"`
}

// GalleryService fetches plant images per device.
type GalleryService struct {
	client  api.Doer
	baseURL string
	logger  *slog.Logger
}

// NewGalleryService creates a gallery service. baseURL resolves relative
// image paths to absolute URLs.
func NewGalleryService(client api.Doer, baseURL string, logger *slog.Logger) *GalleryService {
	return &GalleryService{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "gallery"),
	}
}

// AllImages lists every device's images, newest first. A device whose
// image fetch fails is logged and skipped; one broken camera must not
// empty the gallery. Only the device list itself is fatal.
func (s *GalleryService) AllImages(ctx context.Context) ([]GalleryImage, error) {
	var devices []api.Device
	if err := s.client.Get(ctx, "/devices/", &devices); err != nil {
		return nil, fmt.Errorf("gallery devices: %w", err)
	}

	var out []GalleryImage
	for _, dev := range devices {
		var images []api.PlantImage
		path := fmt.Sprintf("/devices/%d/images", dev.DeviceID)
		if err := s.client.Get(ctx, path, &images); err != nil {
			s.logger.Warn("device images fetch failed, skipping", "device", dev.DeviceID, "err", err)
			continue
		}
		for _, img := range images {
			out = append(out, s.galleryImage(img, dev))
		}
	}
	sortByCapturedDesc(out)
	return out, nil
}

// DeviceImages lists one device's images, newest first.
func (s *GalleryService) DeviceImages(ctx context.Context, deviceID int) ([]GalleryImage, error) {
	var images []api.PlantImage
	path := fmt.Sprintf("/devices/%d/images", deviceID)
	if err := s.client.Get(ctx, path, &images); err != nil {
		return nil, fmt.Errorf("device %d images: %w", deviceID, err)
	}
	out := make([]GalleryImage, 0, len(images))
	for _, img := range images {
		out = append(out, s.galleryImage(img, api.Device{DeviceID: deviceID}))
	}
	sortByCapturedDesc(out)
	return out, nil
}

func (s *GalleryService) galleryImage(img api.PlantImage, dev api.Device) GalleryImage {
	g := GalleryImage{
		ImageID:      img.ImageID,
		DeviceID:     img.DeviceID,
		ImagePath:    img.ImagePath,
		CapturedAt:   img.CapturedAt,
		DeviceName:   dev.DeviceName,
		ThumbnailURL: img.ImagePath,
		FullURL:      img.ImagePath,
	}
	if dev.Location != nil {
		g.DeviceLocation = *dev.Location
	}
	return g
}

func sortByCapturedDesc(images []GalleryImage) {
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].CapturedAt > images[j].CapturedAt
	})
}

// ImageURL resolves an image path to an absolute URL against the backend
// base. Already-absolute paths pass through untouched.
func (s *GalleryService) ImageURL(imagePath string) string {
	if strings.HasPrefix(imagePath, "http") {
		return imagePath
	}
	if !strings.HasPrefix(imagePath, "/") {
		imagePath = "/" + imagePath
	}
	return s.baseURL + imagePath
}

// FilterImagesByDevice keeps images from one device. Zero disables the
// filter.
func FilterImagesByDevice(images []GalleryImage, deviceID int) []GalleryImage {
	if deviceID == 0 {
		return images
	}
	var out []GalleryImage
	for _, img := range images {
		if img.DeviceID == deviceID {
			out = append(out, img)
		}
	}
	return out
}

// FilterImagesByDateRange keeps images captured within [startDate,
// endDate], end inclusive through 23:59:59. Empty bounds disable their
// side.
func FilterImagesByDateRange(images []GalleryImage, startDate, endDate string) []GalleryImage {
	var start, end time.Time
	var hasStart, hasEnd bool
	if startDate != "" {
		if t, err := time.Parse("2006-01-02", startDate); err == nil {
			start, hasStart = t, true
		}
	}
	if endDate != "" {
		if t, err := time.Parse("2006-01-02", endDate); err == nil {
			end, hasEnd = t.Add(24*time.Hour-time.Second), true
		}
	}

	var out []GalleryImage
	for _, img := range images {
		t, err := parseCaptureTime(img.CapturedAt)
		if err != nil {
			continue
		}
		if hasStart && t.Before(start) {
			continue
		}
		if hasEnd && t.After(end) {
			continue
		}
		out = append(out, img)
	}
	return out
}

// FilterImagesByInterval thins a newest-first image list so consecutive
// kept images are at least interval apart. Zero disables thinning.
func FilterImagesByInterval(images []GalleryImage, interval time.Duration) []GalleryImage {
	if interval == 0 {
		return images
	}
	var out []GalleryImage
	var last time.Time
	for _, img := range images {
		t, err := parseCaptureTime(img.CapturedAt)
		if err != nil {
			continue
		}
		if last.IsZero() || absDuration(last.Sub(t)) >= interval {
			out = append(out, img)
			last = t
		}
	}
	return out
}

// SearchImages filters case-insensitively over device name and location.
// A blank term is a no-op.
func SearchImages(images []GalleryImage, term string) []GalleryImage {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "" {
		return images
	}
	var out []GalleryImage
	for _, img := range images {
		if strings.Contains(strings.ToLower(img.DeviceName), term) ||
			strings.Contains(strings.ToLower(img.DeviceLocation), term) {
			out = append(out, img)
		}
	}
	return out
}

func parseCaptureTime(ts string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", ts)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

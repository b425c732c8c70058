package assets

import (
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// ObjectStore stores an object and returns its public URL.
type ObjectStore interface {
	Put(ctx context.Context, objectKey string, data []byte, contentType string) (string, error)
}

// Fetcher downloads a remote file.
type Fetcher func(ctx context.Context, rawURL string) ([]byte, error)

// Published holds the hosted URLs of one course's artwork.
type Published struct {
	IconURL      string
	ThumbnailURL string
}

// Publisher copies course icons into object storage together with a thumbnail.
type Publisher struct {
	store ObjectStore
	fetch Fetcher
}

func NewPublisher(store ObjectStore, fetch Fetcher) *Publisher {
	if fetch == nil {
		fetch = HTTPFetch
	}
	return &Publisher{store: store, fetch: fetch}
}

// PublishIcon downloads iconURL and uploads it plus a 240px thumbnail under
// the course slug. SVG icons are uploaded without a thumbnail.
func (p *Publisher) PublishIcon(ctx context.Context, courseURL, iconURL string) (*Published, error) {
	data, err := p.fetch(ctx, iconURL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", iconURL, err)
	}

	name := "icon" + iconExt(iconURL)
	hostedIcon, err := p.store.Put(ctx, ObjectKey(courseURL, name), data, contentType(name))
	if err != nil {
		return nil, err
	}
	out := &Published{IconURL: hostedIcon}

	if contentType(name) == "image/svg+xml" {
		return out, nil
	}
	thumb, err := Thumbnail(data)
	if err != nil {
		log.Warnf("[Assets] No thumbnail for %s: %v", courseURL, err)
		return out, nil
	}
	out.ThumbnailURL, err = p.store.Put(ctx, ObjectKey(courseURL, "thumbnail.png"), thumb, "image/png")
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HTTPFetch downloads rawURL with the fiber client.
func HTTPFetch(_ context.Context, rawURL string) ([]byte, error) {
	status, body, errs := fiber.Get(rawURL).Bytes()
	if len(errs) > 0 {
		return nil, errs[0]
	}
	if status != fiber.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return body, nil
}

func iconExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".png"
	}
	if ext := path.Ext(u.Path); ext != "" {
		return ext
	}
	return ".png"
}

package photoprism

import "context"

// Album is the part of a PhotoPrism album the sink reports.
type Album struct {
	UID        string `json:"UID"`
	Title      string `json:"Title"`
	PhotoCount int    `json:"PhotoCount"`
}

// GetAlbum retrieves a single album by UID.
func (pp *PhotoPrism) GetAlbum(ctx context.Context, albumUID string) (*Album, error) {
	return getJSON[Album](ctx, pp, "albums", albumUID)
}

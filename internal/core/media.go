package core

import (
	"agrorec/internal/blob"
	"agrorec/pkg/domain"
	"context"
	"errors"
	"fmt"
	"strings"
)

// Media slots of a recommendation.
const (
	SlotFarmerSignature     = "farmerSignature"
	SlotTechnicianSignature = "technicianSignature"
	SlotBeforePhoto         = "beforePhoto"
	SlotAfterPhoto          = "afterPhoto"
)

// MediaArchive copies the opaque signature and photo payloads of
// recommendations into object storage for the external synchronizer.
type MediaArchive struct {
	svc   *Service
	store blob.Store
}

// NewMediaArchive binds an archive to the service and blob store.
func NewMediaArchive(svc *Service, store blob.Store) *MediaArchive {
	return &MediaArchive{svc: svc, store: store}
}

// MediaKey returns the blob key of a recommendation media slot.
func MediaKey(recommendationID, slot string) string {
	return "recommendations/" + recommendationID + "/" + slot
}

func mediaSlots(rec Recommendation) [][2]string {
	var out [][2]string
	add := func(slot string, payload *string) {
		if payload != nil && *payload != "" {
			out = append(out, [2]string{slot, *payload})
		}
	}
	add(SlotFarmerSignature, rec.FarmerSignature)
	add(SlotTechnicianSignature, rec.TechnicianSignature)
	add(SlotBeforePhoto, rec.FollowUp.BeforePhoto)
	add(SlotAfterPhoto, rec.FollowUp.AfterPhoto)
	return out
}

// contentTypeOf reads the media type of a data URL; other payloads are text.
func contentTypeOf(payload string) string {
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		if end := strings.IndexAny(rest, ";,"); end > 0 {
			return rest[:end]
		}
	}
	return "text/plain"
}

// Archive writes every non-empty media payload of rec verbatim and returns
// the blobs written. Slots archived earlier are skipped.
func (m *MediaArchive) Archive(ctx context.Context, rec Recommendation) ([]blob.Info, error) {
	written := []blob.Info{}
	err := m.svc.run(ctx, "archive_media", func(ctx context.Context) (string, error) {
		if rec.ID == "" {
			return "", domain.ValidationError{Entity: EntityRecommendation, Field: "id", Message: "required"}
		}
		for _, slot := range mediaSlots(rec) {
			info, err := m.store.Put(ctx, MediaKey(rec.ID, slot[0]), strings.NewReader(slot[1]), blob.PutOptions{
				ContentType: contentTypeOf(slot[1]),
				Metadata:    map[string]string{"recommendation": rec.ID, "slot": slot[0]},
			})
			if errors.Is(err, blob.ErrExists) {
				continue
			}
			if err != nil {
				return rec.ID, fmt.Errorf("archive %s: %w", slot[0], err)
			}
			written = append(written, info)
		}
		return rec.ID, nil
	})
	return written, err
}

// ArchiveByID loads a visible recommendation and archives its media.
func (m *MediaArchive) ArchiveByID(ctx context.Context, id string) ([]blob.Info, error) {
	rec, ok, err := m.svc.recommendations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound{Entity: EntityRecommendation, ID: id}
	}
	return m.Archive(ctx, rec)
}

// List returns the archived blobs of a recommendation.
func (m *MediaArchive) List(ctx context.Context, recommendationID string) ([]blob.Info, error) {
	return m.store.List(ctx, MediaKey(recommendationID, ""))
}

// Purge removes every archived blob of a recommendation and reports how
// many were deleted.
func (m *MediaArchive) Purge(ctx context.Context, recommendationID string) (int, error) {
	removed := 0
	err := m.svc.run(ctx, "purge_media", func(ctx context.Context) (string, error) {
		infos, err := m.List(ctx, recommendationID)
		if err != nil {
			return recommendationID, err
		}
		for _, info := range infos {
			ok, err := m.store.Delete(ctx, info.Key)
			if err != nil {
				return recommendationID, err
			}
			if ok {
				removed++
			}
		}
		return recommendationID, nil
	})
	return removed, err
}

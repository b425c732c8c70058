package purchasefeed

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
)

// Collection mirrors the document layout the web clients subscribe to.
const Collection = "purchaseSessions"

// FirestoreFeed mirrors purchase session status into Firestore documents.
type FirestoreFeed struct {
	client *firestore.Client
}

func NewFirestoreFeed(client *firestore.Client) *FirestoreFeed {
	return &FirestoreFeed{client: client}
}

type purchaseDocument struct {
	Status        string    `firestore:"status"`
	UserID        string    `firestore:"userId"`
	CourseID      int64     `firestore:"courseId,omitempty"`
	PricingPlanID string    `firestore:"pricingPlanId,omitempty"`
	Updated       time.Time `firestore:"updated"`
}

func (f *FirestoreFeed) Publish(ctx context.Context, u Update) error {
	data := map[string]interface{}{
		"status":  u.Status,
		"userId":  u.UserID,
		"updated": u.At,
	}
	if u.CourseID != 0 {
		data["courseId"] = int64(u.CourseID)
	}
	if u.PricingPlanID != "" {
		data["pricingPlanId"] = u.PricingPlanID
	}
	_, err := f.client.Collection(Collection).Doc(u.PurchaseSessionID).Set(ctx, data, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("write purchase document: %w", err)
	}
	return nil
}

func (f *FirestoreFeed) Wait(ctx context.Context, purchaseSessionID, status string) (Update, error) {
	it := f.client.Collection(Collection).Doc(purchaseSessionID).Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil {
				return Update{}, ctx.Err()
			}
			return Update{}, fmt.Errorf("watch purchase document: %w", err)
		}
		if !snap.Exists() {
			continue
		}
		var doc purchaseDocument
		if err := snap.DataTo(&doc); err != nil {
			return Update{}, fmt.Errorf("decode purchase document: %w", err)
		}
		u := Update{
			PurchaseSessionID: purchaseSessionID,
			UserID:            doc.UserID,
			Status:            doc.Status,
			CourseID:          uint(doc.CourseID),
			PricingPlanID:     doc.PricingPlanID,
			At:                doc.Updated,
		}
		if matches(u, status) {
			return u, nil
		}
	}
}

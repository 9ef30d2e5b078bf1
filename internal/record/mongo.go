package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore reads patient records from the shared MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// patientDoc mirrors the stored document shape. Reports are stored as a
// plain array of upload URLs.
type patientDoc struct {
	PatientID         string    `bson:"patientId"`
	Name              string    `bson:"name"`
	Gender            string    `bson:"gender"`
	Age               *int      `bson:"age"`
	BloodGroup        string    `bson:"bloodGroup"`
	Symptoms          string    `bson:"symptoms"`
	History           string    `bson:"history"`
	OngoingTreatment  string    `bson:"ongoingTreatment"`
	Medications       string    `bson:"medications"`
	Allergies         string    `bson:"allergies"`
	ChronicConditions string    `bson:"chronicConditions"`
	CreatedAt         time.Time `bson:"createdAt"`
	Reports           []string  `bson:"reports"`
}

// NewMongoStore connects to the document store and verifies the connection
// with a ping. An unreachable store is a startup error, not a per-call one.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo unreachable: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Get looks up a patient by the externally assigned patientId field.
func (s *MongoStore) Get(ctx context.Context, patientKey string) (*PatientRecord, error) {
	var doc patientDoc
	err := s.collection.FindOne(ctx, bson.M{"patientId": patientKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to fetch patient %s: %w", patientKey, err)
	}

	rec := &PatientRecord{
		PatientKey:        patientKey,
		Name:              doc.Name,
		Gender:            doc.Gender,
		Age:               doc.Age,
		BloodGroup:        doc.BloodGroup,
		Symptoms:          doc.Symptoms,
		History:           doc.History,
		OngoingTreatment:  doc.OngoingTreatment,
		Medications:       doc.Medications,
		Allergies:         doc.Allergies,
		ChronicConditions: doc.ChronicConditions,
		CreatedAt:         doc.CreatedAt,
		Reports:           make([]ReportReference, len(doc.Reports)),
	}
	for i, url := range doc.Reports {
		rec.Reports[i] = ReportReference{URL: url, Index: i}
	}

	return rec, nil
}

// Ping reports whether the document store is reachable. Used by /health.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

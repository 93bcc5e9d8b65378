package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/openrds/snowball/internal/models"
)

// Collection names.
const (
	collSeeds        = "Seeds"
	collParticipants = "Participants"
	collConsent      = "Consent"
	collSurveys      = "Surveys"
	bucketConsent    = "ConsentForm"

	consentFormFilename = "consent-form.pdf"
)

// Mongo implements Store on a MongoDB (or Cosmos) database. Seeds are keyed
// by MRN, participants and submissions by the zero-padded record id, so the
// store's unique _id constraint carries every uniqueness rule the workflow
// relies on.
type Mongo struct {
	db  *mongo.Database
	now func() time.Time
}

// Connect dials the cluster and returns a store bound to dbName.
func Connect(ctx context.Context, uri, dbName string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return NewMongo(client.Database(dbName)), nil
}

// NewMongo wraps an existing database handle.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the single-field indexes the report queries sort and
// filter on. Compound indexes are not needed; no query sorts on more than
// one field.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]string{
		collSeeds: {
			"REPORT_DATE", "STATUS", "PAT_NAME", "PAT_AGE", "PAT_SEX",
			"ETHNIC_GROUP", "RACE", "ZIP", "RESULT_DATE", "CREATED_AT",
		},
		collParticipants: {
			"MRN", "STATUS", "PAT_AGE", "PAT_SEX", "ETHNIC_GROUP", "RACE",
			"ZIP", "RECORD_ID", "COUPON", "COUPON_ISSUE_DATE",
			"COUPON_REDEEM_DATE", "CONSENT_DATE", "SURVEY_COMPLETION_DATE",
			"CREATED_AT", "TEST_DATE",
		},
		collConsent: {"CREATED_AT"},
		collSurveys: {"CREATED_AT"},
	}
	for coll, fields := range indexes {
		idx := make([]mongo.IndexModel, 0, len(fields))
		for _, f := range fields {
			idx = append(idx, mongo.IndexModel{Keys: bson.D{{Key: f, Value: 1}}})
		}
		if _, err := m.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return err
}

func (m *Mongo) InsertSeed(ctx context.Context, seed *models.Seed) error {
	cp := *seed
	cp.CreatedAt = m.now()
	_, err := m.db.Collection(collSeeds).InsertOne(ctx, &cp)
	return mapWriteErr(err)
}

func (m *Mongo) GetSeed(ctx context.Context, mrn string) (*models.Seed, error) {
	var seed models.Seed
	err := m.db.Collection(collSeeds).FindOne(ctx, bson.M{"_id": mrn}).Decode(&seed)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &seed, nil
}

func (m *Mongo) UpdateSeedStatus(ctx context.Context, mrn, status, logLine string) error {
	res, err := m.db.Collection(collSeeds).UpdateOne(ctx, bson.M{"_id": mrn}, bson.M{
		"$set":  bson.M{"STATUS": status, "UPDATED_AT": m.now()},
		"$push": bson.M{"STATUS_CHANGE_LOG": logLine},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) UpdateSeedFields(ctx context.Context, mrn string, update SeedUpdate) error {
	set := bson.M{"UPDATED_AT": m.now()}
	if update.MobileNum != nil {
		set["MOBILE_NUM"] = *update.MobileNum
	}
	if update.EmailAddress != nil {
		set["EMAIL_ADDRESS"] = *update.EmailAddress
	}
	if update.TestResult != nil {
		set["TEST_RESULT"] = *update.TestResult
	}
	if update.Logs != nil {
		set["LOGS"] = *update.Logs
	}
	res, err := m.db.Collection(collSeeds).UpdateOne(ctx, bson.M{"_id": mrn}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) ListSeeds(ctx context.Context, q SeedQuery) ([]*models.Seed, error) {
	filter := bson.M{}
	if len(q.Statuses) > 0 {
		ors := make([]bson.M, 0, len(q.Statuses))
		for _, st := range q.Statuses {
			ors = append(ors, bson.M{"STATUS": st})
		}
		filter["$or"] = ors
	}
	addAgeFilter(filter, q.AgeMin, q.AgeMax)
	if q.EthnicGroup != "" {
		filter["ETHNIC_GROUP"] = q.EthnicGroup
	}
	if q.Race != "" {
		filter["RACE"] = q.Race
	}
	if q.Sex != "" {
		filter["PAT_SEX"] = q.Sex
	}
	if q.ResultDateAfter != nil {
		filter["RESULT_DATE"] = bson.M{"$gte": *q.ResultDateAfter}
	}
	cur, err := m.db.Collection(collSeeds).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "REPORT_DATE", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Seed
	for cur.Next(ctx) {
		var seed models.Seed
		if err := cur.Decode(&seed); err != nil {
			return nil, err
		}
		s := seed
		out = append(out, &s)
	}
	return out, cur.Err()
}

func addAgeFilter(filter bson.M, min, max *int) {
	if min == nil && max == nil {
		return
	}
	rng := bson.M{}
	if min != nil {
		rng["$gte"] = *min
	}
	if max != nil {
		rng["$lte"] = *max
	}
	filter["PAT_AGE"] = rng
}

type participantDoc struct {
	ID                 string `bson:"_id"`
	models.Participant `bson:",inline"`
}

func (m *Mongo) InsertParticipant(ctx context.Context, p *models.Participant) error {
	cp := *p
	cp.CreatedAt = m.now()
	_, err := m.db.Collection(collParticipants).InsertOne(ctx, participantDoc{
		ID:          RecordKey(p.RecordID),
		Participant: cp,
	})
	return mapWriteErr(err)
}

func (m *Mongo) GetParticipantByRecordID(ctx context.Context, recordID int) (*models.Participant, error) {
	return m.findParticipant(ctx, bson.M{"_id": RecordKey(recordID)})
}

func (m *Mongo) GetParticipantByCoupon(ctx context.Context, coupon string) (*models.Participant, error) {
	return m.findParticipant(ctx, bson.M{"COUPON": coupon})
}

func (m *Mongo) findParticipant(ctx context.Context, filter bson.M) (*models.Participant, error) {
	var doc participantDoc
	err := m.db.Collection(collParticipants).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc.Participant, nil
}

// MaxRecordID reads the highest allocated record id with a find-latest sort.
// Allocation on top of this value is read-then-increment and can race under
// concurrent writers; the workflow tolerates that, matching the store's lack
// of an atomic sequence.
func (m *Mongo) MaxRecordID(ctx context.Context) (int, error) {
	var doc struct {
		RecordID int `bson:"RECORD_ID"`
	}
	err := m.db.Collection(collParticipants).FindOne(ctx, bson.M{},
		options.FindOne().
			SetSort(bson.D{{Key: "RECORD_ID", Value: -1}}).
			SetProjection(bson.M{"RECORD_ID": 1, "_id": 0})).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.RecordID, nil
}

func (m *Mongo) UpdateParticipant(ctx context.Context, recordID int, update ParticipantUpdate) error {
	set := bson.M{"UPDATED_AT": m.now()}
	setString := func(field string, v *string) {
		if v != nil {
			set[field] = *v
		}
	}
	setString("FIRST_NAME", update.FirstName)
	setString("LAST_NAME", update.LastName)
	setString("ZIP", update.ZIP)
	setString("MOBILE_NUM", update.MobileNum)
	setString("EMAIL_ADDRESS", update.EmailAddress)
	setString("ALTERNATIVE_EMAIL", update.AlternateEmail)
	setString("GUIDED", update.Guided)
	setString("TEST_DATE", update.TestDate)
	setString("TEST_RESULT", update.TestResult)
	setString("RESULT_NOTIFIED", update.ResultNotified)
	if update.NumCoupons != nil {
		set["NUM_COUPONS"] = *update.NumCoupons
	}
	if update.ResultDate != nil {
		set["RESULT_DATE"] = *update.ResultDate
	}
	if update.CouponRedeemDate != nil {
		set["COUPON_REDEEM_DATE"] = *update.CouponRedeemDate
	}
	if update.ConsentDate != nil {
		set["CONSENT_DATE"] = *update.ConsentDate
	}
	if update.SurveyCompletion != nil {
		set["SURVEY_COMPLETION_DATE"] = *update.SurveyCompletion
	}
	if update.EnrollmentCompleted != nil {
		set["ENROLLMENT_COMPLETED_DATE"] = *update.EnrollmentCompleted
	}
	if update.CouponsSent != nil {
		set["COUPON_SENT"] = *update.CouponsSent
	}
	if update.PeerCoupons != nil {
		set["peer-coupons"] = *update.PeerCoupons
	}
	if update.Contacts != nil {
		set["contacts"] = *update.Contacts
	}
	res, err := m.db.Collection(collParticipants).UpdateOne(ctx,
		bson.M{"_id": RecordKey(recordID)}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) PrependComment(ctx context.Context, recordID int, c models.Comment) error {
	res, err := m.db.Collection(collParticipants).UpdateOne(ctx,
		bson.M{"_id": RecordKey(recordID)},
		bson.M{"$push": bson.M{"comments": bson.M{"$each": []models.Comment{c}, "$position": 0}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) ListParticipants(ctx context.Context, q ParticipantQuery) ([]*models.Participant, error) {
	filter := bson.M{}
	if q.PType != "" {
		filter["PTYPE"] = q.PType
	}
	addAgeFilter(filter, q.AgeMin, q.AgeMax)
	if q.EthnicGroup != "" {
		filter["ETHNIC_GROUP"] = q.EthnicGroup
	}
	if q.Race != "" {
		filter["RACE"] = q.Race
	}
	if q.Sex != "" {
		filter["PAT_SEX"] = q.Sex
	}
	if q.TestResult != "" {
		filter["TEST_RESULT"] = q.TestResult
	}
	if q.ResultNotified != "" {
		filter["RESULT_NOTIFIED"] = q.ResultNotified
	}
	if q.ResultDateAfter != nil {
		filter["RESULT_DATE"] = bson.M{"$gte": *q.ResultDateAfter}
	}
	if q.ReportDateAfter != nil {
		filter["REPORT_DATE"] = bson.M{"$gte": *q.ReportDateAfter}
	}
	if q.HasRedeemDate {
		filter["COUPON_REDEEM_DATE"] = bson.M{"$exists": true}
	}
	if q.HasSurveyCompletion {
		filter["SURVEY_COMPLETION_DATE"] = bson.M{"$exists": true}
	}
	if q.HasContacts != nil {
		filter["contacts"] = bson.M{"$exists": *q.HasContacts}
	}
	cur, err := m.db.Collection(collParticipants).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "RECORD_ID", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Participant
	for cur.Next(ctx) {
		var doc participantDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		p := doc.Participant
		out = append(out, &p)
	}
	return out, cur.Err()
}

type consentDoc struct {
	ID                       string `bson:"_id"`
	models.ConsentSubmission `bson:",inline"`
}

func (m *Mongo) InsertConsent(ctx context.Context, c *models.ConsentSubmission) error {
	cp := *c
	cp.CreatedAt = m.now()
	_, err := m.db.Collection(collConsent).InsertOne(ctx, consentDoc{
		ID:                RecordKey(c.RecordID),
		ConsentSubmission: cp,
	})
	return mapWriteErr(err)
}

func (m *Mongo) GetConsent(ctx context.Context, recordID int) (*models.ConsentSubmission, error) {
	var doc consentDoc
	err := m.db.Collection(collConsent).FindOne(ctx, bson.M{"_id": RecordKey(recordID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc.ConsentSubmission, nil
}

type surveyDoc struct {
	ID                      string `bson:"_id"`
	models.SurveySubmission `bson:",inline"`
}

func (m *Mongo) InsertSurvey(ctx context.Context, s *models.SurveySubmission) error {
	cp := *s
	cp.CreatedAt = m.now()
	_, err := m.db.Collection(collSurveys).InsertOne(ctx, surveyDoc{
		ID:               RecordKey(s.RecordID),
		SurveySubmission: cp,
	})
	return mapWriteErr(err)
}

func (m *Mongo) GetSurvey(ctx context.Context, recordID int) (*models.SurveySubmission, error) {
	var doc surveyDoc
	err := m.db.Collection(collSurveys).FindOne(ctx, bson.M{"_id": RecordKey(recordID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc.SurveySubmission, nil
}

func (m *Mongo) ListConsents(ctx context.Context) ([]*models.ConsentSubmission, error) {
	cur, err := m.db.Collection(collConsent).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.ConsentSubmission
	for cur.Next(ctx) {
		var doc consentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		c := doc.ConsentSubmission
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (m *Mongo) ListSurveys(ctx context.Context) ([]*models.SurveySubmission, error) {
	cur, err := m.db.Collection(collSurveys).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.SurveySubmission
	for cur.Next(ctx) {
		var doc surveyDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		s := doc.SurveySubmission
		out = append(out, &s)
	}
	return out, cur.Err()
}

// SaveConsentForm stores a new immutable version of the consent form PDF in
// GridFS. The version number is the count of existing versions plus one;
// existing versions are never overwritten.
func (m *Mongo) SaveConsentForm(ctx context.Context, data []byte, comments, modifier string) (int, error) {
	bucket, err := gridfs.NewBucket(m.db, options.GridFSBucket().SetName(bucketConsent))
	if err != nil {
		return 0, err
	}
	count, err := bucket.GetFilesCollection().CountDocuments(ctx, bson.M{"filename": consentFormFilename})
	if err != nil {
		return 0, err
	}
	version := int(count) + 1
	_, err = bucket.UploadFromStream(consentFormFilename, bytes.NewReader(data),
		options.GridFSUpload().SetMetadata(bson.M{
			"version":     version,
			"comments":    comments,
			"modifier":    modifier,
			"contentType": "application/pdf",
		}))
	if err != nil {
		return 0, err
	}
	return version, nil
}

type gridfsFile struct {
	ID         any       `bson:"_id"`
	UploadDate time.Time `bson:"uploadDate"`
	Metadata   struct {
		Version  int    `bson:"version"`
		Comments string `bson:"comments"`
		Modifier string `bson:"modifier"`
	} `bson:"metadata"`
}

// GetConsentForm fetches one stored version, or the latest when version <= 0.
func (m *Mongo) GetConsentForm(ctx context.Context, version int) (*models.ConsentFormVersion, error) {
	bucket, err := gridfs.NewBucket(m.db, options.GridFSBucket().SetName(bucketConsent))
	if err != nil {
		return nil, err
	}
	filter := bson.M{"filename": consentFormFilename}
	if version > 0 {
		filter["metadata.version"] = version
	}
	var file gridfsFile
	err = bucket.GetFilesCollection().FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "metadata.version", Value: -1}})).
		Decode(&file)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	stream, err := bucket.OpenDownloadStream(file.ID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}
	return &models.ConsentFormVersion{
		ConsentFormMeta: models.ConsentFormMeta{
			Version:    file.Metadata.Version,
			Comments:   file.Metadata.Comments,
			Modifier:   file.Metadata.Modifier,
			UploadDate: file.UploadDate,
		},
		Data: data,
	}, nil
}

func (m *Mongo) ListConsentForms(ctx context.Context) ([]*models.ConsentFormMeta, error) {
	bucket, err := gridfs.NewBucket(m.db, options.GridFSBucket().SetName(bucketConsent))
	if err != nil {
		return nil, err
	}
	cur, err := bucket.GetFilesCollection().Find(ctx, bson.M{"filename": consentFormFilename},
		options.Find().SetSort(bson.D{{Key: "metadata.version", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.ConsentFormMeta
	for cur.Next(ctx) {
		var file gridfsFile
		if err := cur.Decode(&file); err != nil {
			return nil, err
		}
		out = append(out, &models.ConsentFormMeta{
			Version:    file.Metadata.Version,
			Comments:   file.Metadata.Comments,
			Modifier:   file.Metadata.Modifier,
			UploadDate: file.UploadDate,
		})
	}
	return out, cur.Err()
}

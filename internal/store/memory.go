package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openrds/snowball/internal/models"
)

// Memory is an in-process Store used by tests. All methods copy documents in
// and out so callers never share memory with the store.
type Memory struct {
	mu           sync.RWMutex
	seeds        map[string]*models.Seed
	participants map[int]*models.Participant
	consents     map[int]*models.ConsentSubmission
	surveys      map[int]*models.SurveySubmission
	forms        []*models.ConsentFormVersion
	now          func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		seeds:        map[string]*models.Seed{},
		participants: map[int]*models.Participant{},
		consents:     map[int]*models.ConsentSubmission{},
		surveys:      map[int]*models.SurveySubmission{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) InsertSeed(ctx context.Context, seed *models.Seed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seeds[seed.MRN]; ok {
		return ErrDuplicateKey
	}
	cp := *seed
	cp.CreatedAt = m.now()
	m.seeds[seed.MRN] = &cp
	return nil
}

func (m *Memory) GetSeed(ctx context.Context, mrn string) (*models.Seed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.seeds[mrn]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpdateSeedStatus(ctx context.Context, mrn, status, logLine string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seeds[mrn]
	if !ok {
		return ErrNotFound
	}
	now := m.now()
	s.Status = status
	s.StatusChangeLog = append(s.StatusChangeLog, logLine)
	s.UpdatedAt = &now
	return nil
}

func (m *Memory) UpdateSeedFields(ctx context.Context, mrn string, update SeedUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seeds[mrn]
	if !ok {
		return ErrNotFound
	}
	if update.MobileNum != nil {
		s.MobileNum = *update.MobileNum
	}
	if update.EmailAddress != nil {
		s.EmailAddress = *update.EmailAddress
	}
	if update.TestResult != nil {
		s.TestResult = *update.TestResult
	}
	if update.Logs != nil {
		s.Logs = *update.Logs
	}
	now := m.now()
	s.UpdatedAt = &now
	return nil
}

func (m *Memory) ListSeeds(ctx context.Context, q SeedQuery) ([]*models.Seed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Seed, 0, len(m.seeds))
	for _, s := range m.seeds {
		if !matchSeed(s, q) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReportDate.After(out[j].ReportDate) })
	return out, nil
}

func matchSeed(s *models.Seed, q SeedQuery) bool {
	if len(q.Statuses) > 0 {
		found := false
		for _, st := range q.Statuses {
			if s.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.AgeMin != nil && s.PatAge < *q.AgeMin {
		return false
	}
	if q.AgeMax != nil && s.PatAge > *q.AgeMax {
		return false
	}
	if q.EthnicGroup != "" && s.EthnicGroup != q.EthnicGroup {
		return false
	}
	if q.Race != "" && s.Race != q.Race {
		return false
	}
	if q.Sex != "" && s.PatSex != q.Sex {
		return false
	}
	if q.ResultDateAfter != nil {
		if s.ResultDate == nil || s.ResultDate.Before(*q.ResultDateAfter) {
			return false
		}
	}
	return true
}

func (m *Memory) InsertParticipant(ctx context.Context, p *models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.participants[p.RecordID]; ok {
		return ErrDuplicateKey
	}
	cp := *p
	cp.CreatedAt = m.now()
	m.participants[p.RecordID] = &cp
	return nil
}

func (m *Memory) GetParticipantByRecordID(ctx context.Context, recordID int) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) GetParticipantByCoupon(ctx context.Context, coupon string) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.participants {
		if p.Coupon == coupon {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) MaxRecordID(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for id := range m.participants {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (m *Memory) UpdateParticipant(ctx context.Context, recordID int, update ParticipantUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[recordID]
	if !ok {
		return ErrNotFound
	}
	applyParticipantUpdate(p, update)
	now := m.now()
	p.UpdatedAt = &now
	return nil
}

func applyParticipantUpdate(p *models.Participant, u ParticipantUpdate) {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.ZIP != nil {
		p.ZIP = *u.ZIP
	}
	if u.MobileNum != nil {
		p.MobileNum = *u.MobileNum
	}
	if u.EmailAddress != nil {
		p.EmailAddress = *u.EmailAddress
	}
	if u.AlternateEmail != nil {
		p.AlternateEmail = *u.AlternateEmail
	}
	if u.Guided != nil {
		p.Guided = *u.Guided
	}
	if u.NumCoupons != nil {
		p.NumCoupons = *u.NumCoupons
	}
	if u.TestDate != nil {
		p.TestDate = *u.TestDate
	}
	if u.TestResult != nil {
		p.TestResult = *u.TestResult
	}
	if u.ResultNotified != nil {
		p.ResultNotified = *u.ResultNotified
	}
	if u.ResultDate != nil {
		t := *u.ResultDate
		p.ResultDate = &t
	}
	if u.CouponRedeemDate != nil {
		t := *u.CouponRedeemDate
		p.CouponRedeemDate = &t
	}
	if u.ConsentDate != nil {
		t := *u.ConsentDate
		p.ConsentDate = &t
	}
	if u.SurveyCompletion != nil {
		t := *u.SurveyCompletion
		p.SurveyCompletion = &t
	}
	if u.EnrollmentCompleted != nil {
		t := *u.EnrollmentCompleted
		p.EnrollmentCompleted = &t
	}
	if u.CouponsSent != nil {
		p.CouponsSent = *u.CouponsSent
	}
	if u.PeerCoupons != nil {
		p.PeerCoupons = append([]models.PeerCoupon(nil), (*u.PeerCoupons)...)
	}
	if u.Contacts != nil {
		p.Contacts = append([]models.Contact(nil), (*u.Contacts)...)
	}
}

func (m *Memory) PrependComment(ctx context.Context, recordID int, c models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[recordID]
	if !ok {
		return ErrNotFound
	}
	p.Comments = append([]models.Comment{c}, p.Comments...)
	return nil
}

func (m *Memory) ListParticipants(ctx context.Context, q ParticipantQuery) ([]*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		if !matchParticipant(p, q) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out, nil
}

func matchParticipant(p *models.Participant, q ParticipantQuery) bool {
	if q.PType != "" && p.PType != q.PType {
		return false
	}
	if q.AgeMin != nil && p.PatAge < *q.AgeMin {
		return false
	}
	if q.AgeMax != nil && p.PatAge > *q.AgeMax {
		return false
	}
	if q.EthnicGroup != "" && p.EthnicGroup != q.EthnicGroup {
		return false
	}
	if q.Race != "" && p.Race != q.Race {
		return false
	}
	if q.Sex != "" && p.PatSex != q.Sex {
		return false
	}
	if q.TestResult != "" && p.TestResult != q.TestResult {
		return false
	}
	if q.ResultNotified != "" && p.ResultNotified != q.ResultNotified {
		return false
	}
	if q.ResultDateAfter != nil {
		if p.ResultDate == nil || p.ResultDate.Before(*q.ResultDateAfter) {
			return false
		}
	}
	if q.ReportDateAfter != nil {
		if p.ReportDate == nil || p.ReportDate.Before(*q.ReportDateAfter) {
			return false
		}
	}
	if q.HasRedeemDate && p.CouponRedeemDate == nil {
		return false
	}
	if q.HasSurveyCompletion && p.SurveyCompletion == nil {
		return false
	}
	if q.HasContacts != nil && *q.HasContacts != (len(p.Contacts) > 0) {
		return false
	}
	return true
}

func (m *Memory) InsertConsent(ctx context.Context, c *models.ConsentSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.consents[c.RecordID]; ok {
		return ErrDuplicateKey
	}
	cp := *c
	cp.CreatedAt = m.now()
	m.consents[c.RecordID] = &cp
	return nil
}

func (m *Memory) GetConsent(ctx context.Context, recordID int) (*models.ConsentSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.consents[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) InsertSurvey(ctx context.Context, s *models.SurveySubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surveys[s.RecordID]; ok {
		return ErrDuplicateKey
	}
	cp := *s
	cp.CreatedAt = m.now()
	m.surveys[s.RecordID] = &cp
	return nil
}

func (m *Memory) GetSurvey(ctx context.Context, recordID int) (*models.SurveySubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.surveys[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListConsents(ctx context.Context) ([]*models.ConsentSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.ConsentSubmission, 0, len(m.consents))
	for _, c := range m.consents {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out, nil
}

func (m *Memory) ListSurveys(ctx context.Context) ([]*models.SurveySubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.SurveySubmission, 0, len(m.surveys))
	for _, s := range m.surveys {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out, nil
}

func (m *Memory) SaveConsentForm(ctx context.Context, data []byte, comments, modifier string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	version := len(m.forms) + 1
	m.forms = append(m.forms, &models.ConsentFormVersion{
		ConsentFormMeta: models.ConsentFormMeta{
			Version:    version,
			Comments:   comments,
			Modifier:   modifier,
			UploadDate: m.now(),
		},
		Data: append([]byte(nil), data...),
	})
	return version, nil
}

func (m *Memory) GetConsentForm(ctx context.Context, version int) (*models.ConsentFormVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.forms) == 0 {
		return nil, ErrNotFound
	}
	if version <= 0 {
		version = len(m.forms)
	}
	if version > len(m.forms) {
		return nil, ErrNotFound
	}
	f := m.forms[version-1]
	cp := *f
	cp.Data = append([]byte(nil), f.Data...)
	return &cp, nil
}

func (m *Memory) ListConsentForms(ctx context.Context) ([]*models.ConsentFormMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.ConsentFormMeta, 0, len(m.forms))
	for i := len(m.forms) - 1; i >= 0; i-- {
		meta := m.forms[i].ConsentFormMeta
		out = append(out, &meta)
	}
	return out, nil
}

package service

import (
	"context"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/queue"
	"github.com/unclebandit/canvass-backend/internal/repository"
	"github.com/unclebandit/canvass-backend/internal/survey"
	"github.com/unclebandit/canvass-backend/internal/texting"
)

var serviceNow = time.Date(2026, time.January, 15, 15, 0, 0, 0, time.UTC)

// MockContactRepo keeps contacts, responses and opt-outs in memory and
// applies updates with the same assignment guard as the SQL store.
type MockContactRepo struct {
	mu        sync.Mutex
	contacts  map[int]*model.CampaignContact
	responses map[int]survey.Responses
	optOuts   map[string]bool
	tags      []model.ContactTag
	updates   []repository.ContactUpdate
	queries   []repository.ContactQuery
	nextMsgID int
	failWith  error
}

func newMockContactRepo(contacts ...*model.CampaignContact) *MockContactRepo {
	m := &MockContactRepo{
		contacts:  map[int]*model.CampaignContact{},
		responses: map[int]survey.Responses{},
		optOuts:   map[string]bool{},
	}
	for _, c := range contacts {
		m.contacts[c.ID] = c
	}
	return m
}

func (m *MockContactRepo) SelectContacts(ctx context.Context, q repository.ContactQuery) ([]*model.CampaignContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)

	statuses := map[string]bool{}
	for _, s := range q.Statuses() {
		statuses[s] = true
	}
	keys, byTZ := q.TimezoneKeys()
	tzs := map[string]bool{}
	for _, k := range keys {
		tzs[k] = true
	}

	var out []*model.CampaignContact
	for _, c := range m.contacts {
		if len(statuses) > 0 && !statuses[string(c.MessageStatus)] {
			continue
		}
		if byTZ && !tzs[c.TimezoneOffset] {
			continue
		}
		if c.IsOptedOut {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MockContactRepo) CountContacts(ctx context.Context, q repository.ContactQuery) (int, error) {
	cs, err := m.SelectContacts(ctx, q)
	return len(cs), err
}

func (m *MockContactRepo) GetByID(ctx context.Context, id int) (*model.CampaignContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil, appErrors.NewNotFound("campaign contact", id)
	}
	copied := *c
	return &copied, nil
}

func (m *MockContactRepo) SetMessageStatus(ctx context.Context, id int, status model.MessageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return appErrors.NewNotFound("campaign contact", id)
	}
	c.MessageStatus = status
	return nil
}

func (m *MockContactRepo) ListQuestionResponses(ctx context.Context, contactID int) ([]model.QuestionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QuestionResponse
	for step, v := range m.responses[contactID] {
		out = append(out, model.QuestionResponse{CampaignContactID: contactID, InteractionStepID: step, Value: v})
	}
	return out, nil
}

func (m *MockContactRepo) IsCellOptedOut(ctx context.Context, organizationID int, cell string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.optOuts[cell], nil
}

func (m *MockContactRepo) ApplyUpdate(ctx context.Context, u repository.ContactUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	c, ok := m.contacts[u.ContactID]
	if !ok {
		return appErrors.NewNotFound("campaign contact", u.ContactID)
	}
	if currentAssignment(c) != u.AssignmentID {
		return appErrors.NewStaleAssignment(c.ID, u.AssignmentID, currentAssignment(c))
	}

	m.updates = append(m.updates, u)
	if u.Status != "" {
		c.MessageStatus = u.Status
	}
	rs := m.responses[c.ID]
	if rs == nil {
		rs = survey.Responses{}
		m.responses[c.ID] = rs
	}
	for _, id := range u.ClearSteps {
		delete(rs, id)
	}
	for _, r := range u.Responses {
		rs[r.InteractionStepID] = r.Value
	}
	if u.Tag != nil {
		m.tags = append(m.tags, *u.Tag)
	}
	if u.OptOut != nil {
		m.optOuts[u.OptOut.Cell] = true
		for _, other := range m.contacts {
			if other.Cell == u.OptOut.Cell {
				other.IsOptedOut = true
			}
		}
	}
	if u.Message != nil {
		m.nextMsgID++
		u.Message.ID = m.nextMsgID
	}
	return nil
}

func (m *MockContactRepo) AddTags(ctx context.Context, tags []model.ContactTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags = append(m.tags, tags...)
	return nil
}

func (m *MockContactRepo) ResolveTags(ctx context.Context, contactIDs []int, tag string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.tags {
		for _, id := range contactIDs {
			if m.tags[i].CampaignContactID == id && m.tags[i].Tag == tag && !m.tags[i].Resolved {
				m.tags[i].Resolved = true
				n++
			}
		}
	}
	return n, nil
}

func (m *MockContactRepo) ListTags(ctx context.Context, contactID int) ([]model.ContactTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ContactTag
	for _, t := range m.tags {
		if t.CampaignContactID == contactID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockContactRepo) lastUpdate() repository.ContactUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		return repository.ContactUpdate{}
	}
	return m.updates[len(m.updates)-1]
}

type MockAssignmentRepo struct {
	assignments map[int]*model.Assignment
}

func (m *MockAssignmentRepo) GetByID(ctx context.Context, id int) (*model.Assignment, error) {
	a, ok := m.assignments[id]
	if !ok {
		return nil, appErrors.NewNotFound("assignment", id)
	}
	copied := *a
	return &copied, nil
}

type MockOrganizationRepo struct {
	mu    sync.Mutex
	orgs  map[int]*model.Organization
	roles map[int][]model.Role
	users map[int]*model.User
	loads int
}

func (m *MockOrganizationRepo) GetByID(ctx context.Context, id int) (*model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	o, ok := m.orgs[id]
	if !ok {
		return nil, appErrors.NewNotFound("organization", id)
	}
	copied := *o
	return &copied, nil
}

func (m *MockOrganizationRepo) org(id int) (*model.Organization, error) {
	o, ok := m.orgs[id]
	if !ok {
		return nil, appErrors.NewNotFound("organization", id)
	}
	return o, nil
}

func (m *MockOrganizationRepo) UpdateTextingHours(ctx context.Context, id, start, end int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.org(id)
	if err != nil {
		return err
	}
	o.TextingHoursStart, o.TextingHoursEnd = start, end
	return nil
}

func (m *MockOrganizationRepo) UpdateTextingHoursEnforcement(ctx context.Context, id int, enforced bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.org(id)
	if err != nil {
		return err
	}
	o.TextingHoursEnforced = enforced
	return nil
}

func (m *MockOrganizationRepo) UpdateOptOutMessage(ctx context.Context, id int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.org(id)
	if err != nil {
		return err
	}
	o.OptOutMessage = message
	return nil
}

func (m *MockOrganizationRepo) UserRoles(ctx context.Context, organizationID, userID int) ([]model.Role, error) {
	return m.roles[userID], nil
}

func (m *MockOrganizationRepo) GetUser(ctx context.Context, id int) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, appErrors.NewNotFound("user", id)
	}
	return u, nil
}

type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	steps     map[int][]model.InteractionStep
	canned    []model.CannedResponse
	loads     int
}

func (m *MockCampaignRepo) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (m *MockCampaignRepo) ListInteractionSteps(ctx context.Context, campaignID int) ([]model.InteractionStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.InteractionStep(nil), m.steps[campaignID]...), nil
}

func (m *MockCampaignRepo) ReplaceInteractionSteps(ctx context.Context, campaignID int, root *survey.Node) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []model.InteractionStep
	err := root.Walk(func(node *survey.Node, parentID int, answer survey.Answer) (int, error) {
		id := 100 + len(rows) + 1
		row := model.InteractionStep{ID: id, CampaignID: campaignID, Question: node.Question, Script: node.Script, AnswerOption: answer.Value}
		if parentID != 0 {
			p := parentID
			row.ParentInteractionID = &p
		}
		rows = append(rows, row)
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	m.steps[campaignID] = rows
	return len(rows), nil
}

func (m *MockCampaignRepo) ListCannedResponses(ctx context.Context, campaignID, userID int) ([]model.CannedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CannedResponse
	for _, c := range m.canned {
		if c.CampaignID == campaignID && (c.UserID == nil || *c.UserID == userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

type MockQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *MockQueue) Publish(ctx context.Context, topic string, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *MockQueue) Subscribe(topic string, handler queue.Handler) error { return nil }

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

// Steps: 1 root, 2 under "Yes", 3 under "Later" of 2, 4 under "No".
func sampleSteps() []model.InteractionStep {
	return []model.InteractionStep{
		{ID: 1, CampaignID: 2, Script: "Hi {firstName}, it's {texterFirstName}. Can we count on you?", Question: "Support?"},
		{ID: 2, CampaignID: 2, ParentInteractionID: intPtr(1), AnswerOption: "Yes", Question: "Volunteer?", Script: "Great!"},
		{ID: 3, CampaignID: 2, ParentInteractionID: intPtr(2), AnswerOption: "Later", Script: "We'll follow up."},
		{ID: 4, CampaignID: 2, ParentInteractionID: intPtr(1), AnswerOption: "No", Script: "Thanks anyway."},
	}
}

type harness struct {
	contacts  *MockContactRepo
	orgs      *MockOrganizationRepo
	campaigns *MockCampaignRepo
	queue     *MockQueue
	catalog   *Catalog
	svc       *ContactService
	assign    *AssignmentService
	orgSvc    *OrganizationService
}

const (
	texterID = 10
	otherID  = 11
	adminID  = 12
)

func newHarness(contacts ...*model.CampaignContact) *harness {
	h := &harness{
		contacts: newMockContactRepo(contacts...),
		orgs: &MockOrganizationRepo{
			orgs: map[int]*model.Organization{
				1: {ID: 1, Name: "Org", TextingHoursEnforced: true, TextingHoursStart: 9, TextingHoursEnd: 21, OptOutMessage: "You're unsubscribed."},
			},
			roles: map[int][]model.Role{
				texterID: {model.RoleTexter},
				otherID:  {model.RoleTexter},
				adminID:  {model.RoleTexter, model.RoleAdmin},
			},
			users: map[int]*model.User{
				texterID: {ID: texterID, FirstName: "Sam", LastName: "Texter"},
			},
		},
		campaigns: &MockCampaignRepo{
			campaigns: map[int]*model.Campaign{2: {ID: 2, OrganizationID: 1, Title: "GOTV"}},
			steps:     map[int][]model.InteractionStep{2: sampleSteps()},
		},
		queue: &MockQueue{},
	}
	assignments := &MockAssignmentRepo{assignments: map[int]*model.Assignment{
		3: {ID: 3, CampaignID: 2, UserID: texterID},
		4: {ID: 4, CampaignID: 2, UserID: otherID},
	}}
	evaluator := texting.NewEvaluator(texting.WithClock(func() time.Time { return serviceNow }))
	h.catalog = NewCatalog(h.campaigns, h.orgs, time.Minute)

	ids := 0
	h.svc = &ContactService{
		Contacts:      h.contacts,
		Assignments:   assignments,
		Organizations: h.orgs,
		Catalog:       h.catalog,
		Evaluator:     evaluator,
		Queue:         h.queue,
		Config:        ContactServiceConfig{BulkSendEnabled: true, BulkSendChunkSize: 2, MaxMessageLength: 160},
		Now:           func() time.Time { return serviceNow },
		NewServiceID: func() string {
			ids++
			return "svc-" + string(rune('a'+ids-1))
		},
	}
	h.assign = &AssignmentService{
		Assignments:   assignments,
		Contacts:      h.contacts,
		Organizations: h.orgs,
		Catalog:       h.catalog,
		Evaluator:     evaluator,
		Now:           func() time.Time { return serviceNow },
	}
	h.orgSvc = &OrganizationService{Organizations: h.orgs, Campaigns: h.campaigns, Catalog: h.catalog}
	return h
}

func contact(id int, status model.MessageStatus, tz string) *model.CampaignContact {
	return &model.CampaignContact{
		ID:             id,
		CampaignID:     2,
		AssignmentID:   intPtr(3),
		FirstName:      "Pat",
		Cell:           "+1555000" + string(rune('0'+id%10)),
		MessageStatus:  status,
		TimezoneOffset: tz,
	}
}

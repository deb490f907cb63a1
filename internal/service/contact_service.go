// internal/service/contact_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/metrics"
	"github.com/unclebandit/canvass-backend/internal/model"
	"github.com/unclebandit/canvass-backend/internal/permissions"
	"github.com/unclebandit/canvass-backend/internal/queue"
	"github.com/unclebandit/canvass-backend/internal/repository"
	"github.com/unclebandit/canvass-backend/internal/survey"
	"github.com/unclebandit/canvass-backend/internal/texting"
)

// ContactServiceConfig holds the deployment switches for sending.
type ContactServiceConfig struct {
	BulkSendEnabled   bool
	BulkSendChunkSize int
	// MaxMessageLength is in characters; 0 disables the check.
	MaxMessageLength int
}

// ContactService implements every texter action on a single contact.
type ContactService struct {
	Contacts      repository.ContactRepositoryInterface
	Assignments   repository.AssignmentRepositoryInterface
	Organizations repository.OrganizationRepositoryInterface
	Catalog       *Catalog
	Evaluator     *texting.Evaluator
	Queue         queue.Queue
	Config        ContactServiceConfig

	// Topic defaults to queue.TopicOutbound.
	Topic        string
	Now          func() time.Time
	NewServiceID func() string
	Logger       *slog.Logger
	QueryTimeout time.Duration
}

func (s *ContactService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *ContactService) serviceID() string {
	if s.NewServiceID == nil {
		return uuid.NewString()
	}
	return s.NewServiceID()
}

type SendMessageInput struct {
	ContactID    int    `json:"-"`
	AssignmentID int    `json:"assignment_id"`
	UserID       int    `json:"-"`
	Text         string `json:"text"`
}

type TagInput struct {
	Tag     string `json:"tag"`
	Comment string `json:"comment"`
}

// FinishInput closes a contact with its final survey answers and an
// optional tag.
type FinishInput struct {
	ContactID    int                      `json:"-"`
	AssignmentID int                      `json:"assignment_id"`
	UserID       int                      `json:"-"`
	Responses    []model.QuestionResponse `json:"responses"`
	Tag          *TagInput                `json:"tag,omitempty"`
}

// OptOutInput opts a contact's cell out of the organization. A nil Message
// sends the organization's opt-out message; an empty one sends nothing.
type OptOutInput struct {
	ContactID    int                      `json:"-"`
	AssignmentID int                      `json:"assignment_id"`
	UserID       int                      `json:"-"`
	Reason       string                   `json:"reason"`
	Message      *string                  `json:"message,omitempty"`
	Responses    []model.QuestionResponse `json:"responses"`
}

type QuestionResponsesInput struct {
	ContactID    int                      `json:"-"`
	AssignmentID int                      `json:"assignment_id"`
	UserID       int                      `json:"-"`
	Responses    []model.QuestionResponse `json:"responses"`
}

// Eligibility is the client's "can I text this contact now" answer.
type Eligibility struct {
	ContactID int            `json:"contact_id"`
	Eligible  bool           `json:"eligible"`
	LocalTime time.Time      `json:"local_time"`
	Location  model.Location `json:"location"`
}

type BulkSendResult struct {
	Messages []*model.Message `json:"messages"`
	Skipped  int              `json:"skipped"`
}

// texterContext is a contact together with the assignment it is being
// worked under.
type texterContext struct {
	contact    *model.CampaignContact
	assignment *model.Assignment
	meta       *CampaignMeta
}

func (tc *texterContext) update() repository.ContactUpdate {
	return repository.ContactUpdate{
		ContactID:      tc.contact.ID,
		AssignmentID:   tc.assignment.ID,
		OrganizationID: tc.meta.Organization.ID,
	}
}

func currentAssignment(c *model.CampaignContact) int {
	if c.AssignmentID == nil {
		return 0
	}
	return *c.AssignmentID
}

// load resolves a contact under assignmentID and checks that userID may act
// on it. A contact moved to another assignment, or on an archived campaign,
// is stale.
func (s *ContactService) load(ctx context.Context, contactID, assignmentID, userID int) (*texterContext, error) {
	contact, err := s.Contacts.GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	assignment, err := s.Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	current := currentAssignment(contact)
	if current != assignment.ID || contact.CampaignID != assignment.CampaignID {
		return nil, appErrors.NewStaleAssignment(contact.ID, assignmentID, current)
	}
	meta, err := s.Catalog.Campaign(ctx, contact.CampaignID)
	if err != nil {
		return nil, err
	}
	if meta.Campaign.IsArchived {
		return nil, appErrors.NewStaleAssignment(contact.ID, assignmentID, current)
	}

	if err := canWorkAssignment(ctx, s.Organizations, meta.Organization.ID, assignment, userID); err != nil {
		return nil, err
	}
	return &texterContext{contact: contact, assignment: assignment, meta: meta}, nil
}

func (s *ContactService) requireRole(ctx context.Context, organizationID, userID int, want model.Role) error {
	roles, err := s.Organizations.UserRoles(ctx, organizationID, userID)
	if err != nil {
		return err
	}
	if permissions.IsSuspended(roles) {
		return appErrors.ErrSuspended
	}
	if !permissions.HasRoleAtLeast(permissions.HighestRole(roles), want) {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *ContactService) eligible(tc *texterContext) bool {
	ok := s.Evaluator.IsEligibleNow(tc.contact.Timezone(), tc.meta.HoursConfig())
	metrics.Eligibility(ok)
	return ok
}

func (s *ContactService) validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return appErrors.ErrEmptyMessage
	}
	if limit := s.Config.MaxMessageLength; limit > 0 {
		if n := utf8.RuneCountInString(text); n > limit {
			return fmt.Errorf("%w: %d characters, limit %d", appErrors.ErrMessageTooLong, n, limit)
		}
	}
	return nil
}

func (s *ContactService) optedOut(ctx context.Context, tc *texterContext) (bool, error) {
	if tc.contact.IsOptedOut {
		return true, nil
	}
	return s.Contacts.IsCellOptedOut(ctx, tc.meta.Organization.ID, tc.contact.Cell)
}

func (s *ContactService) newMessage(tc *texterContext, userID int, text string) *model.Message {
	return &model.Message{
		CampaignContactID: tc.contact.ID,
		AssignmentID:      tc.assignment.ID,
		UserID:            userID,
		ContactNumber:     tc.contact.Cell,
		Text:              text,
		SendStatus:        model.SendQueued,
		ServiceID:         s.serviceID(),
	}
}

// publish hands a committed message to the queue. The message row stays
// QUEUED when publishing fails.
func (s *ContactService) publish(ctx context.Context, msg *model.Message) {
	if s.Queue == nil {
		metrics.MessagesQueued.WithLabelValues("queued").Inc()
		return
	}
	topic := s.Topic
	if topic == "" {
		topic = queue.TopicOutbound
	}
	err := s.Queue.Publish(ctx, topic, queue.Job{MessageID: msg.ID, ServiceID: msg.ServiceID})
	if err != nil {
		metrics.MessagesQueued.WithLabelValues("publish_failed").Inc()
		s.logger().ErrorContext(ctx, "failed to publish message", "message_id", msg.ID, "error", err)
		return
	}
	metrics.MessagesQueued.WithLabelValues("queued").Inc()
}

func rejected(err error) error {
	metrics.MessagesQueued.WithLabelValues("rejected").Inc()
	return err
}

// send records text as an outbound message and advances the contact's
// status, refusing opted-out contacts and contacts outside texting hours.
func (s *ContactService) send(ctx context.Context, tc *texterContext, userID int, text string) (*model.Message, error) {
	out, err := s.optedOut(ctx, tc)
	if err != nil {
		return nil, err
	}
	if out {
		return nil, rejected(appErrors.ErrContactOptedOut)
	}
	if !s.eligible(tc) {
		return nil, rejected(appErrors.ErrOutsideTextingHours)
	}

	msg := s.newMessage(tc, userID, text)
	u := tc.update()
	u.Status = tc.contact.MessageStatus.AfterSend()
	u.Message = msg
	if err := s.Contacts.ApplyUpdate(ctx, u); err != nil {
		return nil, rejected(err)
	}
	tc.contact.MessageStatus = u.Status
	s.publish(ctx, msg)
	return msg, nil
}

func (s *ContactService) SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error) {
	if err := s.validateText(in.Text); err != nil {
		return nil, rejected(err)
	}
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	tc, err := s.load(ctx, in.ContactID, in.AssignmentID, in.UserID)
	if err != nil {
		return nil, rejected(err)
	}
	return s.send(ctx, tc, in.UserID, in.Text)
}

// BulkSend sends the campaign's opening script to the next chunk of
// contacts that still need a first message and can be texted now.
func (s *ContactService) BulkSend(ctx context.Context, userID, assignmentID int) (*BulkSendResult, error) {
	if !s.Config.BulkSendEnabled || s.Config.BulkSendChunkSize <= 0 {
		return nil, appErrors.ErrBulkSendDisabled
	}
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	assignment, err := s.Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.UserID != userID {
		return nil, appErrors.ErrForbidden
	}
	meta, err := s.Catalog.Campaign(ctx, assignment.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, meta.Organization.ID, userID, model.RoleTexter); err != nil {
		return nil, err
	}
	script, err := meta.Script()
	if err != nil {
		return nil, err
	}
	if script == nil {
		return nil, &appErrors.ConfigurationError{CampaignID: meta.Campaign.ID, Reason: "campaign has no interaction steps"}
	}
	texter, err := s.Organizations.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	valid, optedOut := true, false
	q := repository.BuildContactQuery(repository.ContactQueryInput{
		AssignmentID: assignment.ID,
		Filter: &model.ContactsFilter{
			MessageStatus: string(model.StatusNeedsMessage),
			ValidTimezone: &valid,
			IsOptedOut:    &optedOut,
		},
		Organization: meta.Organization,
		Campaign:     meta.Campaign,
		Evaluator:    s.Evaluator,
		Now:          clockOr(s.Now),
		Limit:        s.Config.BulkSendChunkSize,
	})
	result := &BulkSendResult{Messages: []*model.Message{}}
	if q.Empty {
		return result, nil
	}
	contacts, err := s.Contacts.SelectContacts(ctx, q)
	if err != nil {
		return nil, err
	}

	root := script.Root()
	for _, c := range contacts {
		tc := &texterContext{contact: c, assignment: assignment, meta: meta}
		msg, err := s.send(ctx, tc, userID, ApplyScript(root.Script, c, texter))
		if err != nil {
			if appErrors.IsRetryable(err) {
				return result, err
			}
			s.logger().WarnContext(ctx, "bulk send skipped contact", "contact_id", c.ID, "error", err)
			result.Skipped++
			continue
		}
		result.Messages = append(result.Messages, msg)
	}
	s.logger().InfoContext(ctx, "bulk send finished", "assignment_id", assignment.ID, "sent", len(result.Messages), "skipped", result.Skipped)
	return result, nil
}

// surveyChanges applies responses in order to the contact's recorded
// answers and returns the rows to write and the steps to clear.
func (s *ContactService) surveyChanges(ctx context.Context, tc *texterContext, responses []model.QuestionResponse) (survey.Responses, []model.QuestionResponse, []int, error) {
	rows, err := s.Contacts.ListQuestionResponses(ctx, tc.contact.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	before := responsesFrom(rows)
	if len(responses) == 0 {
		return before, nil, nil, nil
	}

	script, err := tc.meta.Script()
	if err != nil {
		return nil, nil, nil, err
	}
	if script == nil {
		return nil, nil, nil, &appErrors.ConfigurationError{CampaignID: tc.meta.Campaign.ID, Reason: "campaign has no interaction steps"}
	}
	after := before
	for _, r := range responses {
		after, _, err = script.ApplyResponse(after, r.InteractionStepID, r.Value)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	set, cleared := diffResponses(tc.contact.ID, before, after)
	return after, set, cleared, nil
}

// UpdateQuestionResponses records survey answers. Changing an answer clears
// every recorded answer below it; an empty value deletes the answer.
func (s *ContactService) UpdateQuestionResponses(ctx context.Context, in QuestionResponsesInput) (survey.Responses, error) {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	tc, err := s.load(ctx, in.ContactID, in.AssignmentID, in.UserID)
	if err != nil {
		return nil, err
	}
	after, set, cleared, err := s.surveyChanges(ctx, tc, in.Responses)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 && len(cleared) == 0 {
		return after, nil
	}
	u := tc.update()
	u.Responses, u.ClearSteps = set, cleared
	if err := s.Contacts.ApplyUpdate(ctx, u); err != nil {
		return nil, err
	}
	return after, nil
}

func (s *ContactService) DeleteQuestionResponses(ctx context.Context, contactID, assignmentID, userID int, stepIDs []int) (survey.Responses, error) {
	responses := make([]model.QuestionResponse, 0, len(stepIDs))
	for _, id := range stepIDs {
		responses = append(responses, model.QuestionResponse{CampaignContactID: contactID, InteractionStepID: id})
	}
	return s.UpdateQuestionResponses(ctx, QuestionResponsesInput{
		ContactID:    contactID,
		AssignmentID: assignmentID,
		UserID:       userID,
		Responses:    responses,
	})
}

// FinishContact closes a contact without sending: survey answers, an
// optional tag and the closed status land together or not at all.
func (s *ContactService) FinishContact(ctx context.Context, in FinishInput) error {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	tc, err := s.load(ctx, in.ContactID, in.AssignmentID, in.UserID)
	if err != nil {
		return err
	}
	_, set, cleared, err := s.surveyChanges(ctx, tc, in.Responses)
	if err != nil {
		return err
	}
	u := tc.update()
	u.Status = model.StatusClosed
	u.Responses, u.ClearSteps = set, cleared
	if in.Tag != nil && in.Tag.Tag != "" {
		u.Tag = &model.ContactTag{CampaignContactID: tc.contact.ID, Tag: in.Tag.Tag, Comment: in.Tag.Comment}
	}
	return s.Contacts.ApplyUpdate(ctx, u)
}

// CreateOptOut opts the contact's cell out of the organization and closes
// the contact. The opt-out message is only sent inside texting hours; the
// opt-out itself is always recorded.
func (s *ContactService) CreateOptOut(ctx context.Context, in OptOutInput) (*model.Message, error) {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	tc, err := s.load(ctx, in.ContactID, in.AssignmentID, in.UserID)
	if err != nil {
		return nil, err
	}
	_, set, cleared, err := s.surveyChanges(ctx, tc, in.Responses)
	if err != nil {
		return nil, err
	}

	u := tc.update()
	u.Status = model.StatusClosed
	u.Responses, u.ClearSteps = set, cleared
	u.OptOut = &model.OptOut{
		OrganizationID: tc.meta.Organization.ID,
		AssignmentID:   tc.assignment.ID,
		Cell:           tc.contact.Cell,
		Reason:         in.Reason,
	}

	text := tc.meta.Organization.OptOutMessage
	if in.Message != nil {
		text = *in.Message
	}
	if strings.TrimSpace(text) != "" {
		if err := s.validateText(text); err != nil {
			return nil, err
		}
		if s.eligible(tc) {
			u.Message = s.newMessage(tc, in.UserID, text)
		} else {
			s.logger().InfoContext(ctx, "opt-out message withheld outside texting hours", "contact_id", tc.contact.ID)
		}
	}

	if err := s.Contacts.ApplyUpdate(ctx, u); err != nil {
		return nil, err
	}
	if u.Message != nil {
		s.publish(ctx, u.Message)
	}
	return u.Message, nil
}

// EditMessageStatus sets a contact's status directly. It is a supervisor
// action and is not tied to an assignment.
func (s *ContactService) EditMessageStatus(ctx context.Context, userID, contactID int, status model.MessageStatus) (*model.CampaignContact, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", appErrors.ErrInvalidMessageStatus, status)
	}
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	contact, err := s.Contacts.GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	meta, err := s.Catalog.Campaign(ctx, contact.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, meta.Organization.ID, userID, model.RoleSupervolunteer); err != nil {
		return nil, err
	}
	if err := s.Contacts.SetMessageStatus(ctx, contactID, status); err != nil {
		return nil, err
	}
	contact.MessageStatus = status
	return contact, nil
}

// organizationsOf returns the distinct organizations owning contactIDs.
func (s *ContactService) organizationsOf(ctx context.Context, contactIDs []int) ([]int, error) {
	seen := map[int]bool{}
	var orgs []int
	for _, id := range contactIDs {
		contact, err := s.Contacts.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		meta, err := s.Catalog.Campaign(ctx, contact.CampaignID)
		if err != nil {
			return nil, err
		}
		if org := meta.Organization.ID; !seen[org] {
			seen[org] = true
			orgs = append(orgs, org)
		}
	}
	return orgs, nil
}

func (s *ContactService) requireTexterOf(ctx context.Context, userID int, contactIDs []int) error {
	orgs, err := s.organizationsOf(ctx, contactIDs)
	if err != nil {
		return err
	}
	for _, org := range orgs {
		if err := s.requireRole(ctx, org, userID, model.RoleTexter); err != nil {
			return err
		}
	}
	return nil
}

func (s *ContactService) AddTags(ctx context.Context, userID int, tags []model.ContactTag) error {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	ids := make([]int, 0, len(tags))
	for _, t := range tags {
		if strings.TrimSpace(t.Tag) == "" {
			return fmt.Errorf("tag for contact %d is empty", t.CampaignContactID)
		}
		ids = append(ids, t.CampaignContactID)
	}
	if err := s.requireTexterOf(ctx, userID, ids); err != nil {
		return err
	}
	return s.Contacts.AddTags(ctx, tags)
}

func (s *ContactService) ResolveTags(ctx context.Context, userID int, contactIDs []int, tag string) (int, error) {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	if err := s.requireTexterOf(ctx, userID, contactIDs); err != nil {
		return 0, err
	}
	return s.Contacts.ResolveTags(ctx, contactIDs, tag)
}

// Eligibility evaluates texting hours for one contact with the same rules
// the contact query applies in bulk.
func (s *ContactService) Eligibility(ctx context.Context, contactID int) (*Eligibility, error) {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	contact, err := s.Contacts.GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	meta, err := s.Catalog.Campaign(ctx, contact.CampaignID)
	if err != nil {
		return nil, err
	}
	cfg := meta.HoursConfig()
	tz := contact.Timezone()
	ok := s.Evaluator.IsEligibleNow(tz, cfg)
	metrics.Eligibility(ok)
	return &Eligibility{
		ContactID: contact.ID,
		Eligible:  ok,
		LocalTime: s.Evaluator.LocalTime(tz, cfg),
		Location:  contact.Location(),
	}, nil
}

// AvailableSteps returns the survey path the contact's answers have opened.
func (s *ContactService) AvailableSteps(ctx context.Context, campaignID, contactID int) ([]survey.Step, error) {
	ctx, cancel := withTimeout(ctx, s.QueryTimeout)
	defer cancel()

	contact, err := s.Contacts.GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if contact.CampaignID != campaignID {
		return nil, appErrors.NewNotFound("campaign contact", contactID)
	}
	meta, err := s.Catalog.Campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	script, err := meta.Script()
	if err != nil {
		return nil, err
	}
	if script == nil {
		return []survey.Step{}, nil
	}
	rows, err := s.Contacts.ListQuestionResponses(ctx, contactID)
	if err != nil {
		return nil, err
	}
	return script.AvailableSteps(responsesFrom(rows))
}

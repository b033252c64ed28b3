package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/platform/mail"
)

// Event is one logical notification to fan out. EventKeyBase plus the
// recipient id forms each row's unique event key, so dispatching the same
// event twice never duplicates a badge.
type Event struct {
	Type  string
	Title string
	Body  string
	Data  map[string]interface{}
	// Roles restricts recipients; empty means every active user.
	Roles        []string
	EventKeyBase string
}

// Dispatcher fans notifications out to a facility's users: an in-app row
// always, plus a best-effort email when the facility has email enabled.
// Dispatch is a side channel; it logs and swallows its own failures.
type Dispatcher struct {
	repo       Repository
	users      facility.UserRepository
	facilities facility.Repository
	sender     mail.Sender
	outbox     *mail.Outbox
}

func NewDispatcher(repo Repository, users facility.UserRepository, facilities facility.Repository, sender mail.Sender, outbox *mail.Outbox) *Dispatcher {
	return &Dispatcher{repo: repo, users: users, facilities: facilities, sender: sender, outbox: outbox}
}

// Dispatch resolves recipients and delivers to each concurrently. It returns
// only resolution errors; per-recipient failures are logged and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, facilityID uuid.UUID, ev Event) error {
	fac, err := d.facilities.GetByID(ctx, facilityID)
	if err != nil {
		return err
	}
	recipients, err := d.users.ListActiveUsers(ctx, facilityID, ev.Roles...)
	if err != nil {
		return err
	}

	var data json.RawMessage
	if ev.Data != nil {
		data, err = json.Marshal(ev.Data)
		if err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	for _, u := range recipients {
		wg.Add(1)
		go func(u *facility.User) {
			defer wg.Done()
			d.deliver(ctx, fac, u, ev, data)
		}(u)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, fac *facility.Facility, u *facility.User, ev Event, data json.RawMessage) {
	inApp := &Notification{
		FacilityID: fac.ID,
		UserID:     u.ID,
		Type:       ev.Type,
		Title:      ev.Title,
		Body:       ev.Body,
		Data:       data,
		EventKey:   ev.EventKeyBase + ":" + u.ID.String(),
		Channel:    ChannelInApp,
	}
	created, err := d.repo.Create(ctx, inApp)
	if err != nil {
		log.Error().Err(err).Str("user_id", u.ID.String()).Str("event_key", inApp.EventKey).
			Msg("create notification failed")
		return
	}
	if !created {
		// Already dispatched for this recipient.
		return
	}

	if !fac.EmailEnabled || u.Email == "" {
		return
	}
	emailRow := &Notification{
		FacilityID: fac.ID,
		UserID:     u.ID,
		Type:       ev.Type,
		Title:      ev.Title,
		Body:       ev.Body,
		Data:       data,
		EventKey:   inApp.EventKey + ":email",
		Channel:    ChannelEmail,
	}
	created, err = d.repo.Create(ctx, emailRow)
	if err != nil || !created {
		if err != nil {
			log.Error().Err(err).Str("user_id", u.ID.String()).Msg("create email notification failed")
		}
		return
	}

	status := DeliverySent
	if err := d.sendEmail(ctx, u.Email, ev); err != nil {
		status = DeliveryQueued
		d.queueFallback(u.Email, ev, err)
	}
	if err := d.repo.SetDelivery(ctx, emailRow.ID, status); err != nil {
		log.Error().Err(err).Str("notification_id", emailRow.ID.String()).Msg("annotate delivery failed")
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, to string, ev Event) error {
	if d.sender == nil {
		return mail.ErrNotConfigured
	}
	return d.sender.Send(ctx, to, ev.Title, ev.Body)
}

// queueFallback appends the undeliverable message to the durable outbox so
// the event is never silently lost.
func (d *Dispatcher) queueFallback(to string, ev Event, cause error) {
	if d.outbox == nil {
		log.Error().Err(cause).Str("to", to).Msg("email failed and no outbox configured")
		return
	}
	entry := mail.OutboxEntry{
		QueuedAt: time.Now().UTC(),
		To:       to,
		Subject:  ev.Title,
		Body:     ev.Body,
		Reason:   cause.Error(),
	}
	if err := d.outbox.Append(entry); err != nil {
		log.Error().Err(err).Str("to", to).Msg("outbox append failed")
	}
}

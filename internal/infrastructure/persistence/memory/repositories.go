package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/member"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/olymp"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/problem"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/queue"
	"github.com/hselingforschool/olymp-queue-bot/internal/domain/shared"
)

func duplicate(domain, message string) error {
	return shared.NewDomainError(domain, "Create", shared.ErrConstraintViolation, message)
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ══════════════════════════════════════════════════════════════════════════════
// OLYMPS
// ══════════════════════════════════════════════════════════════════════════════

type olympRepo struct{ s *state }

func (r olympRepo) Create(_ context.Context, o *olymp.Olymp) error {
	for _, other := range r.s.olymps {
		if other.Name == o.Name {
			return duplicate("olymp", "Олимпиада с таким названием уже существует")
		}
	}
	o.ID = r.s.nextID()
	r.s.olymps[o.ID] = *o
	return nil
}

func (r olympRepo) GetByID(_ context.Context, id int64) (*olymp.Olymp, error) {
	o, ok := r.s.olymps[id]
	if !ok {
		return nil, olymp.ErrOlympNotFound
	}
	return &o, nil
}

func (r olympRepo) GetCurrent(_ context.Context) (*olymp.Olymp, error) {
	keys := sortedKeys(r.s.olymps)
	if len(keys) == 0 {
		return nil, olymp.ErrOlympNotFound
	}
	o := r.s.olymps[keys[len(keys)-1]]
	return &o, nil
}

func (r olympRepo) GetUnfinished(_ context.Context) (*olymp.Olymp, error) {
	for _, id := range sortedKeys(r.s.olymps) {
		if o := r.s.olymps[id]; !o.Status.IsFinished() {
			return &o, nil
		}
	}
	return nil, olymp.ErrOlympNotFound
}

func (r olympRepo) UpdateStatus(_ context.Context, o *olymp.Olymp) error {
	current, ok := r.s.olymps[o.ID]
	if !ok {
		return olymp.ErrOlympNotFound
	}
	current.Status = o.Status
	current.UpdatedAt = o.UpdatedAt
	r.s.olymps[o.ID] = current
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

type userRepo struct{ s *state }

func (r userRepo) checkUnique(u *member.UserIdentity) error {
	for id, other := range r.s.users {
		if id == u.UserID {
			continue
		}
		if other.Handle == u.Handle {
			return duplicate("member", fmt.Sprintf("Пользователь %s уже существует", u.Handle.Mention()))
		}
		if u.TelegramID.IsValid() && other.TelegramID == u.TelegramID {
			return duplicate("member", "Этот Telegram-аккаунт уже привязан к другому пользователю")
		}
	}
	return nil
}

func (r userRepo) CreateUser(_ context.Context, u *member.UserIdentity) error {
	u.UserID = 0
	if err := r.checkUnique(u); err != nil {
		return err
	}
	u.UserID = r.s.nextID()
	r.s.users[u.UserID] = *u
	return nil
}

func (r userRepo) GetUser(_ context.Context, userID int64) (*member.UserIdentity, error) {
	u, ok := r.s.users[userID]
	if !ok {
		return nil, member.ErrUserNotFound
	}
	return &u, nil
}

func (r userRepo) GetUserByTelegramID(_ context.Context, tgID shared.TelegramID) (*member.UserIdentity, error) {
	if !tgID.IsValid() {
		return nil, member.ErrUserNotFound
	}
	for _, u := range r.s.users {
		if u.TelegramID == tgID {
			return &u, nil
		}
	}
	return nil, member.ErrUserNotFound
}

func (r userRepo) GetUserByHandle(_ context.Context, handle shared.Handle) (*member.UserIdentity, error) {
	for _, u := range r.s.users {
		if u.Handle == handle {
			return &u, nil
		}
	}
	return nil, member.ErrUserNotFound
}

func (r userRepo) UpdateUser(_ context.Context, u *member.UserIdentity) error {
	if _, ok := r.s.users[u.UserID]; !ok {
		return member.ErrUserNotFound
	}
	if err := r.checkUnique(u); err != nil {
		return err
	}
	r.s.users[u.UserID] = *u
	return nil
}

func (r userRepo) DeleteUser(_ context.Context, userID int64) error {
	if _, ok := r.s.users[userID]; !ok {
		return member.ErrUserNotFound
	}
	for _, p := range r.s.participants {
		if p.UserID == userID {
			return shared.NewDomainError("member", "DeleteUser", shared.ErrConstraintViolation,
				"Пользователь участвует в олимпиаде")
		}
	}
	for _, x := range r.s.examiners {
		if x.UserID == userID {
			return shared.NewDomainError("member", "DeleteUser", shared.ErrConstraintViolation,
				"Пользователь принимает в олимпиаде")
		}
	}
	delete(r.s.users, userID)
	return nil
}

func (r userRepo) ReassignMemberships(_ context.Context, fromUserID, toUserID int64) error {
	if _, ok := r.s.users[toUserID]; !ok {
		return member.ErrUserNotFound
	}
	for id, p := range r.s.participants {
		if p.UserID != fromUserID {
			continue
		}
		if hasParticipant(r.s, p.OlympID, toUserID) {
			return shared.NewDomainError("member", "ReassignMemberships", shared.ErrConstraintViolation,
				"Пользователь уже участвует в этой олимпиаде")
		}
		p.UserID = toUserID
		r.s.participants[id] = p
	}
	for id, x := range r.s.examiners {
		if x.UserID != fromUserID {
			continue
		}
		if hasExaminer(r.s, x.OlympID, toUserID) {
			return shared.NewDomainError("member", "ReassignMemberships", shared.ErrConstraintViolation,
				"Пользователь уже принимает в этой олимпиаде")
		}
		x.UserID = toUserID
		r.s.examiners[id] = x
	}
	return nil
}

func hasParticipant(s *state, olympID, userID int64) bool {
	for _, p := range s.participants {
		if p.OlympID == olympID && p.UserID == userID {
			return true
		}
	}
	return false
}

func hasExaminer(s *state, olympID, userID int64) bool {
	for _, x := range s.examiners {
		if x.OlympID == olympID && x.UserID == userID {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANTS
// ══════════════════════════════════════════════════════════════════════════════

type participantRepo struct{ s *state }

func (r participantRepo) load(row participantRow) *member.Participant {
	return &member.Participant{
		ID:              row.ID,
		OlympID:         row.OlympID,
		UserIdentity:    r.s.users[row.UserID],
		Grade:           row.Grade,
		LastBlockNumber: row.LastBlockNumber,
	}
}

func (r participantRepo) CreateParticipant(_ context.Context, p *member.Participant) error {
	if _, ok := r.s.users[p.UserID]; !ok {
		return member.ErrUserNotFound
	}
	if hasParticipant(r.s, p.OlympID, p.UserID) {
		return duplicate("member", fmt.Sprintf("%s уже зарегистрирован как участник", p.Handle.Mention()))
	}
	p.ID = r.s.nextID()
	r.s.participants[p.ID] = participantRow{
		ID:              p.ID,
		OlympID:         p.OlympID,
		UserID:          p.UserID,
		Grade:           p.Grade,
		LastBlockNumber: p.LastBlockNumber,
	}
	return nil
}

func (r participantRepo) GetParticipant(_ context.Context, id int64) (*member.Participant, error) {
	row, ok := r.s.participants[id]
	if !ok {
		return nil, member.ErrParticipantNotFound
	}
	return r.load(row), nil
}

func (r participantRepo) GetParticipantByUser(_ context.Context, olympID, userID int64) (*member.Participant, error) {
	for _, row := range r.s.participants {
		if row.OlympID == olympID && row.UserID == userID {
			return r.load(row), nil
		}
	}
	return nil, member.ErrParticipantNotFound
}

func (r participantRepo) UpdateParticipant(_ context.Context, p *member.Participant) error {
	row, ok := r.s.participants[p.ID]
	if !ok {
		return member.ErrParticipantNotFound
	}
	row.Grade = p.Grade
	row.LastBlockNumber = p.LastBlockNumber
	r.s.participants[p.ID] = row
	return nil
}

func (r participantRepo) ListParticipants(_ context.Context, olympID int64) ([]*member.Participant, error) {
	var res []*member.Participant
	for _, id := range sortedKeys(r.s.participants) {
		if row := r.s.participants[id]; row.OlympID == olympID {
			res = append(res, r.load(row))
		}
	}
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAMINERS
// ══════════════════════════════════════════════════════════════════════════════

type examinerRepo struct{ s *state }

func (r examinerRepo) load(row examinerRow) *member.Examiner {
	return &member.Examiner{
		ID:             row.ID,
		OlympID:        row.OlympID,
		UserIdentity:   r.s.users[row.UserID],
		ConferenceLink: row.ConferenceLink,
		IsBusy:         row.IsBusy,
		BusynessLevel:  row.BusynessLevel,
		Problems:       append([]int64(nil), row.Problems...),
	}
}

func (r examinerRepo) CreateExaminer(_ context.Context, x *member.Examiner) error {
	if _, ok := r.s.users[x.UserID]; !ok {
		return member.ErrUserNotFound
	}
	if hasExaminer(r.s, x.OlympID, x.UserID) {
		return duplicate("member", fmt.Sprintf("%s уже зарегистрирован как принимающий", x.Handle.Mention()))
	}
	x.ID = r.s.nextID()
	r.s.examiners[x.ID] = examinerRow{
		ID:             x.ID,
		OlympID:        x.OlympID,
		UserID:         x.UserID,
		ConferenceLink: x.ConferenceLink,
		IsBusy:         x.IsBusy,
		BusynessLevel:  x.BusynessLevel,
		Problems:       append([]int64(nil), x.Problems...),
	}
	return nil
}

func (r examinerRepo) GetExaminer(_ context.Context, id int64) (*member.Examiner, error) {
	row, ok := r.s.examiners[id]
	if !ok {
		return nil, member.ErrExaminerNotFound
	}
	return r.load(row), nil
}

func (r examinerRepo) GetExaminerByUser(_ context.Context, olympID, userID int64) (*member.Examiner, error) {
	for _, row := range r.s.examiners {
		if row.OlympID == olympID && row.UserID == userID {
			return r.load(row), nil
		}
	}
	return nil, member.ErrExaminerNotFound
}

func (r examinerRepo) UpdateExaminer(_ context.Context, x *member.Examiner) error {
	row, ok := r.s.examiners[x.ID]
	if !ok {
		return member.ErrExaminerNotFound
	}
	row.ConferenceLink = x.ConferenceLink
	row.IsBusy = x.IsBusy
	row.BusynessLevel = x.BusynessLevel
	row.Problems = append([]int64(nil), x.Problems...)
	r.s.examiners[x.ID] = row
	return nil
}

func (r examinerRepo) list(olympID int64, freeOnly bool) []*member.Examiner {
	var res []*member.Examiner
	for _, id := range sortedKeys(r.s.examiners) {
		row := r.s.examiners[id]
		if row.OlympID != olympID || (freeOnly && row.IsBusy) {
			continue
		}
		res = append(res, r.load(row))
	}
	return res
}

func (r examinerRepo) ListExaminers(_ context.Context, olympID int64) ([]*member.Examiner, error) {
	return r.list(olympID, false), nil
}

func (r examinerRepo) ListFreeExaminers(_ context.Context, olympID int64) ([]*member.Examiner, error) {
	return r.list(olympID, true), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBLEMS
// ══════════════════════════════════════════════════════════════════════════════

type problemRepo struct{ s *state }

func (r problemRepo) CreateProblem(_ context.Context, p *problem.Problem) error {
	for _, other := range r.s.problems {
		if other.OlympID == p.OlympID && other.Name == p.Name {
			return duplicate("problem", fmt.Sprintf("Задача %q уже существует", p.Name))
		}
	}
	p.ID = r.s.nextID()
	r.s.problems[p.ID] = *p
	return nil
}

func (r problemRepo) GetProblem(_ context.Context, id int64) (*problem.Problem, error) {
	p, ok := r.s.problems[id]
	if !ok {
		return nil, problem.ErrProblemNotFound
	}
	return &p, nil
}

func (r problemRepo) ListProblems(_ context.Context, olympID int64) ([]*problem.Problem, error) {
	var res []*problem.Problem
	for _, id := range sortedKeys(r.s.problems) {
		if p := r.s.problems[id]; p.OlympID == olympID {
			res = append(res, &p)
		}
	}
	return res, nil
}

func (r problemRepo) CreateBlock(_ context.Context, b *problem.Block) error {
	if b.Type != nil {
		for _, other := range r.s.blocks {
			if other.OlympID == b.OlympID && other.Type != nil && *other.Type == *b.Type {
				return duplicate("problem", fmt.Sprintf("Блок %s уже существует", b.Type))
			}
		}
	}
	b.ID = r.s.nextID()
	r.s.blocks[b.ID] = copyBlock(*b)
	return nil
}

func (r problemRepo) GetBlockByType(_ context.Context, olympID int64, t problem.BlockType) (*problem.Block, error) {
	for _, id := range sortedKeys(r.s.blocks) {
		b := r.s.blocks[id]
		if b.OlympID == olympID && b.Type != nil && *b.Type == t {
			c := copyBlock(b)
			return &c, nil
		}
	}
	return nil, problem.ErrBlockNotFound
}

func (r problemRepo) ListBlocks(_ context.Context, olympID int64) ([]*problem.Block, error) {
	var res []*problem.Block
	for _, id := range sortedKeys(r.s.blocks) {
		if b := r.s.blocks[id]; b.OlympID == olympID {
			c := copyBlock(b)
			res = append(res, &c)
		}
	}
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE
// ══════════════════════════════════════════════════════════════════════════════

type queueRepo struct{ s *state }

func (r queueRepo) Create(_ context.Context, e *queue.Entry) error {
	if e.Status.IsActive() {
		if _, err := r.activeBy(func(other queue.Entry) bool { return other.ParticipantID == e.ParticipantID }); err == nil {
			return duplicate("queue", "У участника уже есть активная запись")
		}
	}
	e.ID = r.s.nextID()
	r.s.entries[e.ID] = copyEntry(*e)
	return nil
}

func (r queueRepo) GetByID(_ context.Context, id int64) (*queue.Entry, error) {
	e, ok := r.s.entries[id]
	if !ok {
		return nil, queue.ErrEntryNotFound
	}
	c := copyEntry(e)
	return &c, nil
}

func (r queueRepo) Update(_ context.Context, e *queue.Entry) error {
	if _, ok := r.s.entries[e.ID]; !ok {
		return queue.ErrEntryNotFound
	}
	if e.Status == queue.StatusDiscussing && e.ExaminerID != nil {
		other, err := r.activeBy(func(o queue.Entry) bool {
			return o.Status == queue.StatusDiscussing && o.HasExaminer(*e.ExaminerID)
		})
		if err == nil && other.ID != e.ID {
			return shared.NewDomainError("queue", "Update", shared.ErrConstraintViolation,
				"Принимающий уже принимает другого участника")
		}
	}
	r.s.entries[e.ID] = copyEntry(*e)
	return nil
}

func (r queueRepo) activeBy(match func(queue.Entry) bool) (*queue.Entry, error) {
	for _, id := range sortedKeys(r.s.entries) {
		e := r.s.entries[id]
		if e.Status.IsActive() && match(e) {
			c := copyEntry(e)
			return &c, nil
		}
	}
	return nil, queue.ErrEntryNotFound
}

func (r queueRepo) ActiveByParticipant(_ context.Context, participantID int64) (*queue.Entry, error) {
	return r.activeBy(func(e queue.Entry) bool { return e.ParticipantID == participantID })
}

func (r queueRepo) ActiveByExaminer(_ context.Context, examinerID int64) (*queue.Entry, error) {
	return r.activeBy(func(e queue.Entry) bool {
		return e.Status == queue.StatusDiscussing && e.HasExaminer(examinerID)
	})
}

func (r queueRepo) list(match func(queue.Entry) bool) []*queue.Entry {
	var res []*queue.Entry
	for _, id := range sortedKeys(r.s.entries) {
		if e := r.s.entries[id]; match(e) {
			c := copyEntry(e)
			res = append(res, &c)
		}
	}
	return res
}

func (r queueRepo) ListWaiting(_ context.Context, olympID int64) ([]*queue.Entry, error) {
	return r.list(func(e queue.Entry) bool {
		return e.OlympID == olympID && e.Status == queue.StatusWaiting
	}), nil
}

func (r queueRepo) ListActive(_ context.Context, olympID int64) ([]*queue.Entry, error) {
	return r.list(func(e queue.Entry) bool {
		return e.OlympID == olympID && e.Status.IsActive()
	}), nil
}

func (r queueRepo) ListByParticipant(_ context.Context, participantID int64) ([]*queue.Entry, error) {
	return r.list(func(e queue.Entry) bool { return e.ParticipantID == participantID }), nil
}

func (r queueRepo) CountActive(ctx context.Context, olympID int64) (int, error) {
	active, err := r.ListActive(ctx, olympID)
	return len(active), err
}

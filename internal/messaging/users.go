package messaging

import (
	"context"
	"fmt"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
)

// Virtual user and key payload fields.
const (
	FieldDID        = "did"
	FieldUsername   = "username"
	FieldAccountID  = "hederaAccountId"
	FieldActive     = "active"
	FieldKeyType    = "type"
	FieldAccountKey = "hederaAccountKey"
)

// userFields is the subset of a user record callers may see. The account
// key is never part of it.
var userFields = []string{queryir.FieldID, FieldDID, FieldUsername, FieldAccountID, FieldActive}

// User is a virtual operator account.
type User struct {
	ID        string `json:"id"`
	DID       string `json:"did"`
	Username  string `json:"username"`
	AccountID string `json:"hederaAccountId"`
	Active    bool   `json:"active"`
}

func userFrom(obj doc.Object) User {
	return User{
		ID:        obj.GetString(queryir.FieldID),
		DID:       obj.GetString(FieldDID),
		Username:  obj.GetString(FieldUsername),
		AccountID: obj.GetString(FieldAccountID),
		Active:    obj.GetBool(FieldActive),
	}
}

// NewUser describes a virtual user to create. AccountKey is optional.
type NewUser struct {
	Username   string
	DID        string
	AccountID  string
	AccountKey string
	Active     bool
}

// CreateVirtualUser stores a user for the run, plus a separate key record
// when an account key is given. A DID can only be registered once per run.
// The run's system mode applies to both records.
func (e *Emulator) CreateVirtualUser(ctx context.Context, run dryrun.Run, u NewUser) (User, error) {
	sess, err := e.session(run)
	if err != nil {
		return User{}, err
	}
	if u.DID == "" {
		return User{}, fmt.Errorf("create virtual user: did is required")
	}

	n, err := sess.Count(ctx, dryrun.VirtualUser, queryir.Eq(FieldDID, doc.String(u.DID)))
	if err != nil {
		return User{}, err
	}
	if n > 0 {
		return User{}, &dryrun.Error{
			Code:    dryrun.CodeAlreadyExists,
			Message: fmt.Sprintf("virtual user %s already exists", u.DID),
			RunID:   run.ID(),
		}
	}

	item, err := sess.Create(dryrun.VirtualUser, doc.NewObject(
		doc.O(FieldDID, doc.String(u.DID)),
		doc.O(FieldUsername, doc.String(u.Username)),
		doc.O(FieldAccountID, doc.String(u.AccountID)),
		doc.O(FieldActive, doc.Bool(u.Active)),
		doc.O(FieldCreateDate, e.now()),
	))
	if err != nil {
		return User{}, err
	}
	saved, err := sess.Save(ctx, dryrun.VirtualUser, item)
	if err != nil {
		return User{}, fmt.Errorf("create virtual user %s: %w", u.DID, err)
	}

	if u.AccountKey != "" {
		if err := e.SetVirtualKey(ctx, run, u.DID, u.DID, u.AccountKey); err != nil {
			return User{}, err
		}
	}

	user := userFrom(saved)
	if user.Active {
		// Keep the single-active invariant when the new user starts active.
		if _, err := e.SetActiveUser(ctx, run, user.DID); err != nil {
			return User{}, err
		}
	}
	e.logger.Debug("created virtual user", "run_id", run.ID(), "did", u.DID)
	return user, nil
}

// SetActiveUser activates the user with did and deactivates every other
// user of the run. It reports whether a user with did exists; when none
// does, every user ends up inactive.
func (e *Emulator) SetActiveUser(ctx context.Context, run dryrun.Run, did string) (bool, error) {
	sess, err := e.session(run)
	if err != nil {
		return false, err
	}
	users, err := sess.Find(ctx, dryrun.VirtualUser, nil, queryir.Options{})
	if err != nil {
		return false, err
	}

	found := false
	changed := make([]doc.Object, 0, len(users))
	for _, u := range users {
		active := u.GetString(FieldDID) == did
		found = found || active
		if u.GetBool(FieldActive) == active {
			continue
		}
		u[FieldActive] = doc.Bool(active)
		changed = append(changed, u)
	}
	if len(changed) > 0 {
		if _, err := sess.Rewrite(ctx, dryrun.VirtualUser, changed); err != nil {
			return false, fmt.Errorf("set active user %s: %w", did, err)
		}
	}
	e.logger.Debug("set active virtual user", "run_id", run.ID(), "did", did, "found", found)
	return found, nil
}

// GetActiveUser returns the run's active user.
func (e *Emulator) GetActiveUser(ctx context.Context, run dryrun.Run) (User, bool, error) {
	sess, err := e.session(run)
	if err != nil {
		return User{}, false, err
	}
	found, err := sess.Find(ctx, dryrun.VirtualUser,
		queryir.Eq(FieldActive, doc.Bool(true)),
		queryir.Options{Limit: 1, Fields: userFields})
	if err != nil || len(found) == 0 {
		return User{}, false, err
	}
	return userFrom(found[0]), true, nil
}

// GetVirtualUser returns the user registered with did.
func (e *Emulator) GetVirtualUser(ctx context.Context, run dryrun.Run, did string) (User, bool, error) {
	sess, err := e.session(run)
	if err != nil {
		return User{}, false, err
	}
	found, err := sess.Find(ctx, dryrun.VirtualUser,
		queryir.Eq(FieldDID, doc.String(did)),
		queryir.Options{Limit: 1, Fields: userFields})
	if err != nil || len(found) == 0 {
		return User{}, false, err
	}
	return userFrom(found[0]), true, nil
}

// ListVirtualUsers returns every user of the run in creation order.
func (e *Emulator) ListVirtualUsers(ctx context.Context, run dryrun.Run) ([]User, error) {
	sess, err := e.session(run)
	if err != nil {
		return nil, err
	}
	found, err := sess.Find(ctx, dryrun.VirtualUser, nil, queryir.Options{Fields: userFields})
	if err != nil {
		return nil, err
	}
	out := make([]User, len(found))
	for i, obj := range found {
		out[i] = userFrom(obj)
	}
	return out, nil
}

// Key is a named key of a virtual user.
type Key struct {
	DID  string `json:"did"`
	Type string `json:"type"`
	Key  string `json:"hederaAccountKey"`
}

func keyScope(did, keyName string) queryir.And {
	return queryir.AllOf(
		queryir.Eq(FieldDID, doc.String(did)),
		queryir.Eq(FieldKeyType, doc.String(keyName)),
	)
}

// GetVirtualKey returns the key keyName of the user with did.
func (e *Emulator) GetVirtualKey(ctx context.Context, run dryrun.Run, did, keyName string) (string, bool, error) {
	sess, err := e.session(run)
	if err != nil {
		return "", false, err
	}
	found, ok, err := sess.FindOne(ctx, dryrun.VirtualKey, keyScope(did, keyName))
	if err != nil || !ok {
		return "", false, err
	}
	return found.GetString(FieldAccountKey), true, nil
}

// SetVirtualKey stores key as keyName of the user with did, replacing any
// previous value.
func (e *Emulator) SetVirtualKey(ctx context.Context, run dryrun.Run, did, keyName, key string) error {
	sess, err := e.session(run)
	if err != nil {
		return err
	}
	item, ok, err := sess.FindOne(ctx, dryrun.VirtualKey, keyScope(did, keyName))
	if err != nil {
		return err
	}
	if !ok {
		item, err = sess.Create(dryrun.VirtualKey, doc.NewObject(
			doc.O(FieldDID, doc.String(did)),
			doc.O(FieldKeyType, doc.String(keyName)),
		))
		if err != nil {
			return err
		}
	}
	item[FieldAccountKey] = doc.String(key)
	if _, err := sess.Save(ctx, dryrun.VirtualKey, item); err != nil {
		return fmt.Errorf("set virtual key %s/%s: %w", did, keyName, err)
	}
	return nil
}

// ListVirtualKeys returns the keys of the user with did, or of every user
// when did is empty.
func (e *Emulator) ListVirtualKeys(ctx context.Context, run dryrun.Run, did string) ([]Key, error) {
	sess, err := e.session(run)
	if err != nil {
		return nil, err
	}
	var filter queryir.Predicate
	if did != "" {
		filter = queryir.Eq(FieldDID, doc.String(did))
	}
	found, err := sess.Find(ctx, dryrun.VirtualKey, filter, queryir.Options{})
	if err != nil {
		return nil, err
	}
	out := make([]Key, len(found))
	for i, obj := range found {
		out[i] = Key{
			DID:  obj.GetString(FieldDID),
			Type: obj.GetString(FieldKeyType),
			Key:  obj.GetString(FieldAccountKey),
		}
	}
	return out, nil
}

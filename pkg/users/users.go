package users

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/metastore"
	"github.com/threefoldtech/s3-cas/pkg/security"
	"github.com/threefoldtech/s3-cas/pkg/types"
)

const (
	treeUsers        = "_USERS"
	treeUsersByLogin = "_USERS_BY_LOGIN"
	treeUsersByS3Key = "_USERS_BY_S3_KEY"
)

// Directory is the tenant directory: user identity, admin-UI login, and S3
// credentials, indexed three ways over the shared metastore so any of
// (user ID, login, access key) resolves a UserRecord directly.
type Directory struct {
	store metastore.Store
}

// NewDirectory wraps store (ordinarily the process-wide shared metastore)
// with the user-directory API.
func NewDirectory(store metastore.Store) *Directory {
	return &Directory{store: store}
}

// CreateUser provisions a new tenant: a UUID user ID, a fresh S3 key pair,
// and (if login is non-empty) an admin-UI login. Fails if login or
// the generated access key already exist — the latter is vanishingly
// unlikely but checked for correctness.
func (d *Directory) CreateUser(login, passwordHash string, isAdmin bool) (types.UserRecord, error) {
	if login != "" {
		byLogin, err := d.store.NamedTree(treeUsersByLogin)
		if err != nil {
			return types.UserRecord{}, err
		}
		exists, err := byLogin.Contains([]byte(login))
		if err != nil {
			return types.UserRecord{}, err
		}
		if exists {
			return types.UserRecord{}, fmt.Errorf("users: login %q: %w", login, casserr.ErrAlreadyExists)
		}
	}

	keys, err := security.GenerateKeyPair()
	if err != nil {
		return types.UserRecord{}, fmt.Errorf("users: generate key pair: %w", err)
	}
	byKey, err := d.store.NamedTree(treeUsersByS3Key)
	if err != nil {
		return types.UserRecord{}, err
	}
	taken, err := byKey.Contains([]byte(keys.AccessKey))
	if err != nil {
		return types.UserRecord{}, err
	}
	if taken {
		return types.UserRecord{}, fmt.Errorf("users: access key: %w", casserr.ErrAlreadyExists)
	}

	record := types.UserRecord{
		UserID:       uuid.NewString(),
		UILogin:      login,
		PasswordHash: passwordHash,
		S3AccessKey:  keys.AccessKey,
		S3SecretKey:  keys.SecretKey,
		IsAdmin:      isAdmin,
	}
	if err := d.insert(record); err != nil {
		return types.UserRecord{}, err
	}
	return record, nil
}

func (d *Directory) insert(record types.UserRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("users: encode record: %w", err)
	}

	users, err := d.store.NamedTree(treeUsers)
	if err != nil {
		return err
	}
	if err := users.Insert([]byte(record.UserID), raw); err != nil {
		return fmt.Errorf("users: %w", err)
	}

	if record.UILogin != "" {
		byLogin, err := d.store.NamedTree(treeUsersByLogin)
		if err != nil {
			return err
		}
		if err := byLogin.Insert([]byte(record.UILogin), []byte(record.UserID)); err != nil {
			return fmt.Errorf("users: %w", err)
		}
	}

	byKey, err := d.store.NamedTree(treeUsersByS3Key)
	if err != nil {
		return err
	}
	if err := byKey.Insert([]byte(record.S3AccessKey), []byte(record.UserID)); err != nil {
		return fmt.Errorf("users: %w", err)
	}
	return nil
}

// GetByID returns the user identified by userID.
func (d *Directory) GetByID(userID string) (types.UserRecord, error) {
	users, err := d.store.NamedTree(treeUsers)
	if err != nil {
		return types.UserRecord{}, err
	}
	raw, err := users.Get([]byte(userID))
	if err != nil {
		return types.UserRecord{}, err
	}
	if raw == nil {
		return types.UserRecord{}, fmt.Errorf("users: user %q: %w", userID, casserr.ErrNotFound)
	}
	return decodeRecord(raw)
}

// GetByLogin resolves an admin-UI login to its UserRecord.
func (d *Directory) GetByLogin(login string) (types.UserRecord, error) {
	byLogin, err := d.store.NamedTree(treeUsersByLogin)
	if err != nil {
		return types.UserRecord{}, err
	}
	userID, err := byLogin.Get([]byte(login))
	if err != nil {
		return types.UserRecord{}, err
	}
	if userID == nil {
		return types.UserRecord{}, fmt.Errorf("users: login %q: %w", login, casserr.ErrNotFound)
	}
	return d.GetByID(string(userID))
}

// GetByS3AccessKey resolves an S3 access key to its UserRecord — the lookup
// the request router uses to authenticate a signed request.
func (d *Directory) GetByS3AccessKey(accessKey string) (types.UserRecord, error) {
	byKey, err := d.store.NamedTree(treeUsersByS3Key)
	if err != nil {
		return types.UserRecord{}, err
	}
	userID, err := byKey.Get([]byte(accessKey))
	if err != nil {
		return types.UserRecord{}, err
	}
	if userID == nil {
		return types.UserRecord{}, fmt.Errorf("users: access key: %w: %w", casserr.ErrAuthentication, casserr.ErrNotFound)
	}
	return d.GetByID(string(userID))
}

// ListUsers returns every provisioned user, in metastore iteration order.
func (d *Directory) ListUsers() ([]types.UserRecord, error) {
	users, err := d.store.NamedTree(treeUsers)
	if err != nil {
		return nil, err
	}
	var out []types.UserRecord
	err = users.ForEach(func(_, v []byte) error {
		record, err := decodeRecord(v)
		if err != nil {
			return err
		}
		out = append(out, record)
		return nil
	})
	return out, err
}

// RotateS3Keys replaces userID's S3 key pair, removing the old access-key
// index entry and inserting the new one.
func (d *Directory) RotateS3Keys(userID string) (types.UserRecord, error) {
	record, err := d.GetByID(userID)
	if err != nil {
		return types.UserRecord{}, err
	}

	keys, err := security.GenerateKeyPair()
	if err != nil {
		return types.UserRecord{}, fmt.Errorf("users: generate key pair: %w", err)
	}

	byKey, err := d.store.NamedTree(treeUsersByS3Key)
	if err != nil {
		return types.UserRecord{}, err
	}
	if err := byKey.Remove([]byte(record.S3AccessKey)); err != nil {
		return types.UserRecord{}, fmt.Errorf("users: %w", err)
	}

	record.S3AccessKey = keys.AccessKey
	record.S3SecretKey = keys.SecretKey
	if err := d.insert(record); err != nil {
		return types.UserRecord{}, err
	}
	return record, nil
}

// SetPassword rewrites userID's password hash, touching only the primary
// _USERS record — the admin-UI login and S3 key indices are untouched, since
// neither is keyed on the password.
func (d *Directory) SetPassword(userID, newHash string) error {
	record, err := d.GetByID(userID)
	if err != nil {
		return err
	}
	record.PasswordHash = newHash

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("users: encode record: %w", err)
	}
	users, err := d.store.NamedTree(treeUsers)
	if err != nil {
		return err
	}
	if err := users.Insert([]byte(userID), raw); err != nil {
		return fmt.Errorf("users: %w", err)
	}
	return nil
}

// SetAdmin toggles userID's admin flag.
func (d *Directory) SetAdmin(userID string, isAdmin bool) error {
	record, err := d.GetByID(userID)
	if err != nil {
		return err
	}
	record.IsAdmin = isAdmin
	return d.insert(record)
}

// DeleteUser removes userID and all of its index entries.
func (d *Directory) DeleteUser(userID string) error {
	record, err := d.GetByID(userID)
	if err != nil {
		return err
	}

	users, err := d.store.NamedTree(treeUsers)
	if err != nil {
		return err
	}
	if err := users.Remove([]byte(userID)); err != nil {
		return fmt.Errorf("users: %w", err)
	}

	if record.UILogin != "" {
		byLogin, err := d.store.NamedTree(treeUsersByLogin)
		if err != nil {
			return err
		}
		if err := byLogin.Remove([]byte(record.UILogin)); err != nil {
			return fmt.Errorf("users: %w", err)
		}
	}

	byKey, err := d.store.NamedTree(treeUsersByS3Key)
	if err != nil {
		return err
	}
	if err := byKey.Remove([]byte(record.S3AccessKey)); err != nil {
		return fmt.Errorf("users: %w", err)
	}
	return nil
}

func decodeRecord(raw []byte) (types.UserRecord, error) {
	var record types.UserRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return types.UserRecord{}, fmt.Errorf("users: %w: %w", casserr.ErrCorruption, err)
	}
	return record, nil
}

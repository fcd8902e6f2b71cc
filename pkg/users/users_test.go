package users

import (
	"errors"
	"testing"

	"github.com/threefoldtech/s3-cas/pkg/casserr"
	"github.com/threefoldtech/s3-cas/pkg/metastore"
	"github.com/threefoldtech/s3-cas/pkg/security"
	"github.com/threefoldtech/s3-cas/pkg/types"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	store, err := metastore.NewAtomicBackend(t.TempDir(), 0, types.DurabilityFsync)
	if err != nil {
		t.Fatalf("NewAtomicBackend() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewDirectory(store)
}

func TestCreateUserAndLookups(t *testing.T) {
	dir := newTestDirectory(t)

	created, err := dir.CreateUser("alice", "hashed-password", false)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if created.UserID == "" || created.S3AccessKey == "" || created.S3SecretKey == "" {
		t.Fatalf("CreateUser() returned incomplete record: %+v", created)
	}

	byID, err := dir.GetByID(created.UserID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID != created {
		t.Errorf("GetByID() = %+v, want %+v", byID, created)
	}

	byLogin, err := dir.GetByLogin("alice")
	if err != nil {
		t.Fatalf("GetByLogin() error = %v", err)
	}
	if byLogin != created {
		t.Errorf("GetByLogin() = %+v, want %+v", byLogin, created)
	}

	byKey, err := dir.GetByS3AccessKey(created.S3AccessKey)
	if err != nil {
		t.Fatalf("GetByS3AccessKey() error = %v", err)
	}
	if byKey != created {
		t.Errorf("GetByS3AccessKey() = %+v, want %+v", byKey, created)
	}
}

func TestCreateUserDuplicateLoginFails(t *testing.T) {
	dir := newTestDirectory(t)
	if _, err := dir.CreateUser("bob", "hash1", false); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	_, err := dir.CreateUser("bob", "hash2", false)
	if !errors.Is(err, casserr.ErrAlreadyExists) {
		t.Fatalf("CreateUser() duplicate login error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	dir := newTestDirectory(t)
	_, err := dir.GetByID("nonexistent")
	if !errors.Is(err, casserr.ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetByS3AccessKeyUnknownClassifiesAsAuthentication(t *testing.T) {
	dir := newTestDirectory(t)
	_, err := dir.GetByS3AccessKey("no-such-key")
	if !errors.Is(err, casserr.ErrAuthentication) {
		t.Errorf("GetByS3AccessKey() error = %v, want ErrAuthentication", err)
	}
	if !errors.Is(err, casserr.ErrNotFound) {
		t.Errorf("GetByS3AccessKey() error = %v, want also ErrNotFound", err)
	}
	if got := casserr.Kind(err); got != casserr.KindAuthentication {
		t.Errorf("casserr.Kind() = %v, want KindAuthentication", got)
	}
}

func TestRotateS3KeysChangesAccessKeyAndOldKeyStopsResolving(t *testing.T) {
	dir := newTestDirectory(t)
	created, err := dir.CreateUser("carol", "hash", false)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	oldKey := created.S3AccessKey

	rotated, err := dir.RotateS3Keys(created.UserID)
	if err != nil {
		t.Fatalf("RotateS3Keys() error = %v", err)
	}
	if rotated.S3AccessKey == oldKey {
		t.Error("RotateS3Keys() did not change the access key")
	}

	if _, err := dir.GetByS3AccessKey(oldKey); !errors.Is(err, casserr.ErrNotFound) {
		t.Errorf("old access key still resolves: err = %v", err)
	}
	resolved, err := dir.GetByS3AccessKey(rotated.S3AccessKey)
	if err != nil {
		t.Fatalf("GetByS3AccessKey(new key) error = %v", err)
	}
	if resolved.UserID != created.UserID {
		t.Error("rotated key resolves to the wrong user")
	}
}

func TestSetAdminToggle(t *testing.T) {
	dir := newTestDirectory(t)
	created, err := dir.CreateUser("dave", "hash", false)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := dir.SetAdmin(created.UserID, true); err != nil {
		t.Fatalf("SetAdmin() error = %v", err)
	}
	got, err := dir.GetByID(created.UserID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.IsAdmin {
		t.Error("SetAdmin(true) did not persist")
	}
}

func TestSetPasswordRewritesOnlyPrimaryRecord(t *testing.T) {
	dir := newTestDirectory(t)
	created, err := dir.CreateUser("henry", "old-hash", false)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	newHash, err := security.HashPassword("s3cr3t")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := dir.SetPassword(created.UserID, newHash); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	got, err := dir.GetByID(created.UserID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !security.VerifyPassword(got.PasswordHash, "s3cr3t") {
		t.Error("SetPassword() did not persist a hash that verifies against the new password")
	}

	// Login and access-key indices are untouched by a password change.
	byLogin, err := dir.GetByLogin("henry")
	if err != nil {
		t.Fatalf("GetByLogin() error = %v", err)
	}
	if byLogin.UserID != created.UserID {
		t.Errorf("GetByLogin() after SetPassword() = %+v, want user %s", byLogin, created.UserID)
	}
	byKey, err := dir.GetByS3AccessKey(created.S3AccessKey)
	if err != nil {
		t.Fatalf("GetByS3AccessKey() error = %v", err)
	}
	if byKey.UserID != created.UserID {
		t.Errorf("GetByS3AccessKey() after SetPassword() = %+v, want user %s", byKey, created.UserID)
	}
}

func TestSetPasswordUnknownUserFails(t *testing.T) {
	dir := newTestDirectory(t)
	if err := dir.SetPassword("no-such-user", "hash"); !errors.Is(err, casserr.ErrNotFound) {
		t.Errorf("SetPassword() on unknown user error = %v, want ErrNotFound", err)
	}
}

func TestDeleteUserRemovesAllIndices(t *testing.T) {
	dir := newTestDirectory(t)
	created, err := dir.CreateUser("erin", "hash", false)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := dir.DeleteUser(created.UserID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	if _, err := dir.GetByID(created.UserID); !errors.Is(err, casserr.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := dir.GetByLogin("erin"); !errors.Is(err, casserr.ErrNotFound) {
		t.Errorf("GetByLogin() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := dir.GetByS3AccessKey(created.S3AccessKey); !errors.Is(err, casserr.ErrNotFound) {
		t.Errorf("GetByS3AccessKey() after delete error = %v, want ErrNotFound", err)
	}
}

func TestListUsers(t *testing.T) {
	dir := newTestDirectory(t)
	if _, err := dir.CreateUser("frank", "hash", false); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, err := dir.CreateUser("grace", "hash", true); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	all, err := dir.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListUsers() returned %d users, want 2", len(all))
	}
}

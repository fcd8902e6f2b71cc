// Package users implements the tenant directory: UserRecord CRUD over
// three metastore index trees (by user ID, by admin-UI login, and by S3
// access key) so any of the three resolves the same record.
package users

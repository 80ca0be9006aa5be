package schema

import "fmt"

// DDL templates. Every %s is a quoted identifier produced by sqlgw.Qualified or sqlgw.Ident.
const (
	createSchemaSQL = `CREATE SCHEMA %s`
	dropSchemaSQL   = `DROP SCHEMA IF EXISTS %s CASCADE`

	createEventsSQL = `CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	created_by UUID,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	ended_at TIMESTAMPTZ,
	attendance_table TEXT NOT NULL,
	verification_table TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

	createMembersSQL = `CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL CHECK (role IN ('admin', 'manager', 'viewer')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

	// The channel derivation must stay in step with naming.ChangeChannel.
	createNotifyFuncSQL = `CREATE OR REPLACE FUNCTION %s.notify_verification() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('vf_' || md5(TG_TABLE_SCHEMA || '.' || TG_TABLE_NAME),
		json_build_object('eventType', TG_OP, 'new', row_to_json(NEW))::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`

	createAttendanceSQL = `CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	participant_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	email TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

	createVerificationSQL = `CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	participant_id TEXT NOT NULL REFERENCES %s (participant_id) ON DELETE CASCADE,
	name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK (status IN ('verified', 'duplicate', 'invalid')),
	verified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	note TEXT
)`

	createIndexSQL   = `CREATE INDEX IF NOT EXISTS %s ON %s (participant_id)`
	createTriggerSQL = `CREATE OR REPLACE TRIGGER notify_change AFTER INSERT ON %s FOR EACH ROW EXECUTE FUNCTION %s.notify_verification()`
	dropTableSQL     = `DROP TABLE IF EXISTS %s`
)

func ddl(tmpl string, idents ...string) string {
	args := make([]any, len(idents))
	for i, s := range idents {
		args[i] = s
	}
	return fmt.Sprintf(tmpl, args...)
}

package database

// Migration represents a single versioned, transactionally-applied
// schema change.
type Migration struct {
	Version int
	SQL     string
}

// migrations is the list of all database migrations, applied in order.
var migrations = []Migration{
	{
		Version: 1,
		SQL: `
			CREATE TABLE accounts (
				id TEXT PRIMARY KEY,
				display_name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				type TEXT NOT NULL,
				settings TEXT NOT NULL DEFAULT '{}',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE folders (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				type TEXT NOT NULL DEFAULT 'custom',
				remote_id TEXT NOT NULL,
				parent_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
				icon TEXT NOT NULL DEFAULT '',
				color TEXT NOT NULL DEFAULT '',
				sort_order INTEGER NOT NULL DEFAULT 0,
				expanded INTEGER NOT NULL DEFAULT 1,
				hidden INTEGER NOT NULL DEFAULT 0,
				sync_interval INTEGER NOT NULL DEFAULT 300,
				last_synced_at DATETIME,
				unread_count INTEGER NOT NULL DEFAULT 0,
				total_count INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(account_id, remote_id)
			);
			CREATE INDEX idx_folders_account ON folders(account_id);
			CREATE INDEX idx_folders_parent ON folders(parent_id);

			CREATE TABLE conversations (
				id TEXT PRIMARY KEY,
				remote_id TEXT NOT NULL,
				message_count INTEGER NOT NULL DEFAULT 0,
				ai_cache TEXT,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(remote_id)
			);

			CREATE TABLE emails (
				id TEXT PRIMARY KEY,
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
				message_id TEXT NOT NULL,
				conversation_id TEXT REFERENCES conversations(id) ON DELETE SET NULL,
				remote_id TEXT,
				from_address TEXT NOT NULL DEFAULT '',
				from_name TEXT NOT NULL DEFAULT '',
				to_list TEXT NOT NULL DEFAULT '[]',
				cc_list TEXT NOT NULL DEFAULT '[]',
				bcc_list TEXT NOT NULL DEFAULT '[]',
				reply_to_list TEXT NOT NULL DEFAULT '[]',
				subject TEXT NOT NULL DEFAULT '',
				snippet TEXT,
				body_plain TEXT NOT NULL DEFAULT '',
				body_html TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT '',
				size INTEGER NOT NULL DEFAULT 0,
				received_at DATETIME NOT NULL,
				sent_at DATETIME,
				scheduled_send_at DATETIME,
				is_read INTEGER NOT NULL DEFAULT 0,
				is_flagged INTEGER NOT NULL DEFAULT 0,
				is_draft INTEGER NOT NULL DEFAULT 0,
				has_attachments INTEGER NOT NULL DEFAULT 0,
				is_deleted INTEGER NOT NULL DEFAULT 0,
				tracking_blocked INTEGER NOT NULL DEFAULT 0,
				images_blocked INTEGER NOT NULL DEFAULT 0,
				sync_status TEXT NOT NULL DEFAULT 'headers_only',
				body_fetch_attempts INTEGER NOT NULL DEFAULT 0,
				last_body_fetch_attempt DATETIME,
				ai_cache TEXT,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(account_id, message_id)
			);
			CREATE INDEX idx_emails_folder ON emails(folder_id);
			CREATE INDEX idx_emails_account ON emails(account_id);
			CREATE INDEX idx_emails_conversation ON emails(conversation_id);
			CREATE UNIQUE INDEX idx_emails_remote ON emails(account_id, folder_id, remote_id) WHERE remote_id IS NOT NULL;
			CREATE INDEX idx_emails_sync_status ON emails(sync_status) WHERE is_deleted = 0;
			CREATE INDEX idx_emails_deleted ON emails(is_deleted) WHERE is_deleted = 1;

			CREATE TABLE attachments (
				id TEXT PRIMARY KEY,
				email_id TEXT NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
				filename TEXT NOT NULL,
				content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
				size INTEGER NOT NULL DEFAULT 0,
				hash TEXT NOT NULL,
				cache_path TEXT,
				is_inline INTEGER NOT NULL DEFAULT 0,
				is_cached INTEGER NOT NULL DEFAULT 0,
				content_id TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_attachments_email ON attachments(email_id);
			CREATE INDEX idx_attachments_hash ON attachments(hash);

			CREATE TABLE labels (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				color TEXT NOT NULL DEFAULT '',
				icon TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE email_labels (
				email_id TEXT NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
				label_id TEXT NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
				PRIMARY KEY (email_id, label_id)
			);

			CREATE TABLE contacts (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				display_name TEXT NOT NULL DEFAULT '',
				company TEXT NOT NULL DEFAULT '',
				source TEXT NOT NULL DEFAULT 'observed',
				avatar_type TEXT NOT NULL DEFAULT 'none',
				avatar_path TEXT,
				send_count INTEGER NOT NULL DEFAULT 0,
				receive_count INTEGER NOT NULL DEFAULT 0,
				last_used_at DATETIME,
				first_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_contacts_avatar ON contacts(avatar_type) WHERE avatar_type = 'none';

			CREATE TABLE sync_state (
				account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
				status TEXT NOT NULL DEFAULT 'idle',
				error_message TEXT NOT NULL DEFAULT '',
				error_count INTEGER NOT NULL DEFAULT 0,
				last_sync_at DATETIME,
				next_sync_at DATETIME,
				last_uid INTEGER,
				sync_token TEXT,
				PRIMARY KEY (account_id, folder_id)
			);

			CREATE TABLE views (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL DEFAULT 'list',
				config TEXT NOT NULL DEFAULT '{}',
				is_default INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE license_cache (
				instance_id TEXT PRIMARY KEY,
				key_masked TEXT NOT NULL DEFAULT '',
				user TEXT NOT NULL DEFAULT '',
				mode TEXT NOT NULL DEFAULT 'unlicensed',
				ai_mode TEXT NOT NULL DEFAULT 'saas',
				expires_at DATETIME,
				trial_ends_at DATETIME,
				validated_at DATETIME
			);
		`,
	},
	{
		Version: 2,
		SQL: `
			-- Self-contained FTS5 index over the searchable fields. The
			-- application's index writer is the only thing that touches
			-- this table (no triggers), so it can be dropped and rebuilt
			-- from the emails table at any time without touching row
			-- storage, and a missing or corrupt index never blocks sync.
			CREATE VIRTUAL TABLE emails_fts USING fts5(
				email_id UNINDEXED,
				subject,
				snippet,
				body_plain,
				from_address,
				to_addresses,
				labels_text
			);

			-- Per-folder indexing progress, so a cold rebuild can report
			-- completion without the caller polling row counts directly.
			CREATE TABLE fts_index_status (
				folder_id TEXT PRIMARY KEY REFERENCES folders(id) ON DELETE CASCADE,
				indexed_count INTEGER NOT NULL DEFAULT 0,
				total_count INTEGER NOT NULL DEFAULT 0,
				is_complete INTEGER NOT NULL DEFAULT 0,
				last_indexed_at DATETIME
			);
		`,
	},
	{
		Version: 3,
		SQL: `
			-- Settings live in a file (internal/config); credentials still
			-- need a DB-backed encrypted fallback column for when the OS
			-- keyring is unavailable.
			CREATE TABLE account_credentials (
				account_id TEXT PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
				encrypted_password BLOB,
				encrypted_oauth_token BLOB
			);
		`,
	},
}

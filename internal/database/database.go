package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"strings"

	"evocrm/internal/migrations"
	"evocrm/internal/models"

	"github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure on the
// given column (e.g. "contacts.jid"). Racing writers rely on this to treat
// "already exists" as a signal, not a failure.
func IsUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if !asSqliteError(err, &sqliteErr) {
		return false
	}
	if sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return column == "" || strings.Contains(err.Error(), column)
}

func asSqliteError(err error, target *sqlite3.Error) bool {
	for err != nil {
		if e, ok := err.(sqlite3.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Contact operations

// CreateContact inserts a new contact and returns its id. A UNIQUE violation
// on contacts.jid or contacts.login is returned to the caller undecorated so
// the resolver can distinguish the two races.
func (d *Database) CreateContact(ctx context.Context, contact *models.Contact) (int64, error) {
	encryptedJID, err := d.encryptor.EncryptForLookupIfEnabled(contact.JID)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt JID: %w", err)
	}

	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(contact.Phone)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt phone: %w", err)
	}

	encryptedLogin, err := d.encryptor.EncryptForLookupIfEnabled(contact.Login)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt login: %w", err)
	}

	encryptedEmail, err := d.encryptor.EncryptIfEnabled(contact.Email)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt email: %w", err)
	}

	encryptedName, err := d.encryptor.EncryptIfEnabled(contact.DisplayName)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt display name: %w", err)
	}

	query := `
		INSERT INTO contacts (
			jid, phone, login, email, display_name, lifecycle_tag, instance_name
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var result sql.Result
	err = withRetry(ctx, "create contact", func() error {
		var execErr error
		result, execErr = d.db.ExecContext(ctx, query,
			encryptedJID, encryptedPhone, encryptedLogin, encryptedEmail,
			encryptedName, contact.LifecycleTag, contact.InstanceName)
		return execErr
	})
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get contact id: %w", err)
	}

	return id, nil
}

const contactColumns = `id, jid, phone, login, email, display_name, lifecycle_tag,
		avatar_attachment_id, instance_name, created_at, updated_at`

func (d *Database) scanContact(row *sql.Row) (*models.Contact, error) {
	var encryptedJID, encryptedPhone, encryptedLogin, encryptedEmail, encryptedName string
	contact := &models.Contact{}

	err := row.Scan(
		&contact.ID,
		&encryptedJID,
		&encryptedPhone,
		&encryptedLogin,
		&encryptedEmail,
		&encryptedName,
		&contact.LifecycleTag,
		&contact.AvatarID,
		&contact.InstanceName,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	if contact.JID, err = d.encryptor.DecryptIfEnabled(encryptedJID); err != nil {
		return nil, fmt.Errorf("failed to decrypt JID: %w", err)
	}
	if contact.Phone, err = d.encryptor.DecryptIfEnabled(encryptedPhone); err != nil {
		return nil, fmt.Errorf("failed to decrypt phone: %w", err)
	}
	if contact.Login, err = d.encryptor.DecryptIfEnabled(encryptedLogin); err != nil {
		return nil, fmt.Errorf("failed to decrypt login: %w", err)
	}
	if contact.Email, err = d.encryptor.DecryptIfEnabled(encryptedEmail); err != nil {
		return nil, fmt.Errorf("failed to decrypt email: %w", err)
	}
	if contact.DisplayName, err = d.encryptor.DecryptIfEnabled(encryptedName); err != nil {
		return nil, fmt.Errorf("failed to decrypt display name: %w", err)
	}

	return contact, nil
}

// GetContactByJID returns the contact mapped to a network address, or nil
// when no mapping exists.
func (d *Database) GetContactByJID(ctx context.Context, jid string) (*models.Contact, error) {
	encryptedJID, err := d.encryptor.EncryptForLookupIfEnabled(jid)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt JID: %w", err)
	}

	query := `SELECT ` + contactColumns + ` FROM contacts WHERE jid = ?`
	return d.scanContact(d.db.QueryRowContext(ctx, query, encryptedJID))
}

// GetContactByID returns a contact by primary key, or nil when absent.
func (d *Database) GetContactByID(ctx context.Context, id int64) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = ?`
	return d.scanContact(d.db.QueryRowContext(ctx, query, id))
}

// GetContactByPhone returns a contact by the numeric lookup field.
func (d *Database) GetContactByPhone(ctx context.Context, phone string) (*models.Contact, error) {
	encryptedPhone, err := d.encryptor.EncryptForLookupIfEnabled(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}

	query := `SELECT ` + contactColumns + ` FROM contacts WHERE phone = ?`
	return d.scanContact(d.db.QueryRowContext(ctx, query, encryptedPhone))
}

// SetContactAvatar records an avatar attachment on a contact, but only when
// none is set yet. Returns true when the update was applied.
func (d *Database) SetContactAvatar(ctx context.Context, contactID, attachmentID int64) (bool, error) {
	query := `
		UPDATE contacts
		SET avatar_attachment_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND avatar_attachment_id IS NULL
	`

	result, err := d.db.ExecContext(ctx, query, attachmentID, contactID)
	if err != nil {
		return false, fmt.Errorf("failed to set contact avatar: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// ListContacts returns contacts ordered by most recently created.
func (d *Database) ListContacts(ctx context.Context, limit, offset int) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := d.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		var encryptedJID, encryptedPhone, encryptedLogin, encryptedEmail, encryptedName string
		contact := &models.Contact{}

		err := rows.Scan(
			&contact.ID,
			&encryptedJID,
			&encryptedPhone,
			&encryptedLogin,
			&encryptedEmail,
			&encryptedName,
			&contact.LifecycleTag,
			&contact.AvatarID,
			&contact.InstanceName,
			&contact.CreatedAt,
			&contact.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		if contact.JID, err = d.encryptor.DecryptIfEnabled(encryptedJID); err != nil {
			return nil, fmt.Errorf("failed to decrypt JID: %w", err)
		}
		if contact.Phone, err = d.encryptor.DecryptIfEnabled(encryptedPhone); err != nil {
			return nil, fmt.Errorf("failed to decrypt phone: %w", err)
		}
		if contact.Login, err = d.encryptor.DecryptIfEnabled(encryptedLogin); err != nil {
			return nil, fmt.Errorf("failed to decrypt login: %w", err)
		}
		if contact.Email, err = d.encryptor.DecryptIfEnabled(encryptedEmail); err != nil {
			return nil, fmt.Errorf("failed to decrypt email: %w", err)
		}
		if contact.DisplayName, err = d.encryptor.DecryptIfEnabled(encryptedName); err != nil {
			return nil, fmt.Errorf("failed to decrypt display name: %w", err)
		}

		contacts = append(contacts, contact)
	}

	return contacts, rows.Err()
}

// Message operations

// SaveMessage persists a chat message. When a message with the same network
// id already exists, the existing id is returned with created=false; the
// UNIQUE constraint on wa_message_id closes the replay race at the storage
// layer instead of a read-then-write check.
func (d *Database) SaveMessage(ctx context.Context, msg *models.Message) (int64, bool, error) {
	encryptedWAID, err := d.encryptor.EncryptForLookupIfEnabled(msg.WAMessageID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to encrypt message ID: %w", err)
	}

	encryptedSender, err := d.encryptor.EncryptIfEnabled(msg.SenderJID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to encrypt sender: %w", err)
	}

	encryptedRecipient, err := d.encryptor.EncryptIfEnabled(msg.RecipientJID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to encrypt recipient: %w", err)
	}

	encryptedParticipant, err := d.encryptor.EncryptIfEnabled(msg.ParticipantJID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to encrypt participant: %w", err)
	}

	encryptedContent, err := d.encryptor.EncryptIfEnabled(msg.Content)
	if err != nil {
		return 0, false, fmt.Errorf("failed to encrypt content: %w", err)
	}

	query := `
		INSERT INTO messages (
			wa_message_id, contact_id, instance_name, sender_jid, recipient_jid,
			direction, message_type, content, attachment_id, is_group,
			participant_jid, event_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var result sql.Result
	err = withRetry(ctx, "save message", func() error {
		var execErr error
		result, execErr = d.db.ExecContext(ctx, query,
			encryptedWAID,
			msg.ContactID,
			msg.InstanceName,
			encryptedSender,
			encryptedRecipient,
			msg.Direction,
			msg.Type,
			encryptedContent,
			msg.AttachmentID,
			msg.IsGroup,
			encryptedParticipant,
			msg.Timestamp,
		)
		return execErr
	})
	if err != nil {
		if IsUniqueViolation(err, "messages.wa_message_id") {
			existing, lookupErr := d.GetMessageByWAID(ctx, msg.WAMessageID)
			if lookupErr != nil {
				return 0, false, fmt.Errorf("duplicate message lookup failed: %w", lookupErr)
			}
			if existing != nil {
				return existing.ID, false, nil
			}
		}
		return 0, false, fmt.Errorf("failed to save message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get message id: %w", err)
	}

	return id, true, nil
}

const messageColumns = `id, wa_message_id, contact_id, instance_name, sender_jid,
		recipient_jid, direction, message_type, content, attachment_id,
		is_group, participant_jid, event_timestamp, created_at`

func (d *Database) scanMessage(scan func(dest ...interface{}) error) (*models.Message, error) {
	var encryptedWAID, encryptedSender, encryptedRecipient string
	var encryptedParticipant, encryptedContent sql.NullString
	msg := &models.Message{}

	err := scan(
		&msg.ID,
		&encryptedWAID,
		&msg.ContactID,
		&msg.InstanceName,
		&encryptedSender,
		&encryptedRecipient,
		&msg.Direction,
		&msg.Type,
		&encryptedContent,
		&msg.AttachmentID,
		&msg.IsGroup,
		&encryptedParticipant,
		&msg.Timestamp,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if msg.WAMessageID, err = d.encryptor.DecryptIfEnabled(encryptedWAID); err != nil {
		return nil, fmt.Errorf("failed to decrypt message ID: %w", err)
	}
	if msg.SenderJID, err = d.encryptor.DecryptIfEnabled(encryptedSender); err != nil {
		return nil, fmt.Errorf("failed to decrypt sender: %w", err)
	}
	if msg.RecipientJID, err = d.encryptor.DecryptIfEnabled(encryptedRecipient); err != nil {
		return nil, fmt.Errorf("failed to decrypt recipient: %w", err)
	}
	if encryptedParticipant.Valid {
		if msg.ParticipantJID, err = d.encryptor.DecryptIfEnabled(encryptedParticipant.String); err != nil {
			return nil, fmt.Errorf("failed to decrypt participant: %w", err)
		}
	}
	if encryptedContent.Valid {
		if msg.Content, err = d.encryptor.DecryptIfEnabled(encryptedContent.String); err != nil {
			return nil, fmt.Errorf("failed to decrypt content: %w", err)
		}
	}

	return msg, nil
}

// GetMessageByWAID returns the message with the given network id, or nil.
func (d *Database) GetMessageByWAID(ctx context.Context, waMessageID string) (*models.Message, error) {
	encryptedWAID, err := d.encryptor.EncryptForLookupIfEnabled(waMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message ID: %w", err)
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE wa_message_id = ?`
	row := d.db.QueryRowContext(ctx, query, encryptedWAID)

	msg, err := d.scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessageByID returns a message by primary key, or nil.
func (d *Database) GetMessageByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	row := d.db.QueryRowContext(ctx, query, id)

	msg, err := d.scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// LinkAttachment records the attachment reference on an already persisted
// message.
func (d *Database) LinkAttachment(ctx context.Context, messageID, attachmentID int64) error {
	query := `UPDATE messages SET attachment_id = ? WHERE id = ?`

	result, err := d.db.ExecContext(ctx, query, attachmentID, messageID)
	if err != nil {
		return fmt.Errorf("failed to link attachment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no message found with id %d", messageID)
	}

	return nil
}

// ListMessagesByContact returns messages for a contact ordered newest first,
// keyset-paginated by event timestamp. A beforeTimestamp of zero starts from
// the newest message.
func (d *Database) ListMessagesByContact(ctx context.Context, contactID int64, beforeTimestamp int64, limit int) ([]*models.Message, error) {
	if beforeTimestamp <= 0 {
		beforeTimestamp = math.MaxInt64
	}

	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE contact_id = ? AND event_timestamp < ?
		ORDER BY event_timestamp DESC
		LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query, contactID, beforeTimestamp, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// Attachment operations

// SaveAttachment records a stored binary blob and returns its id.
func (d *Database) SaveAttachment(ctx context.Context, att *models.Attachment) (int64, error) {
	query := `
		INSERT INTO attachments (file_path, file_url, mime_type, size_bytes)
		VALUES (?, ?, ?, ?)
	`

	var result sql.Result
	err := withRetry(ctx, "save attachment", func() error {
		var execErr error
		result, execErr = d.db.ExecContext(ctx, query,
			att.FilePath, att.FileURL, att.MimeType, att.SizeBytes)
		return execErr
	})
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get attachment id: %w", err)
	}

	return id, nil
}

// GetAttachment returns an attachment by id, or nil.
func (d *Database) GetAttachment(ctx context.Context, id int64) (*models.Attachment, error) {
	query := `SELECT id, file_path, file_url, mime_type, size_bytes, created_at
		FROM attachments WHERE id = ?`

	att := &models.Attachment{}
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&att.ID, &att.FilePath, &att.FileURL, &att.MimeType, &att.SizeBytes, &att.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	return att, nil
}

// CleanupOldMessages removes messages past the retention window together with
// their attachments. Avatar attachments are never touched.
func (d *Database) CleanupOldMessages(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	attachmentCleanup := `
		DELETE FROM attachments
		WHERE id IN (
			SELECT attachment_id FROM messages
			WHERE attachment_id IS NOT NULL
			  AND created_at < datetime('now', '-' || ? || ' days')
		)
		AND id NOT IN (
			SELECT avatar_attachment_id FROM contacts WHERE avatar_attachment_id IS NOT NULL
		)
	`
	if _, err := d.db.Exec(attachmentCleanup, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old attachments: %w", err)
	}

	messageCleanup := `
		DELETE FROM messages
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`
	if _, err := d.db.Exec(messageCleanup, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old messages: %w", err)
	}

	return nil
}

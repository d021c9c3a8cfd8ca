package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var householdID sql.NullInt64
	var archived int
	err := scanner.Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.Role, &householdID,
		&u.PasswordHash, &archived, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if householdID.Valid {
		u.HouseholdID = &householdID.Int64
	}
	u.Archived = archived != 0
	return &u, nil
}

const userCols = `id, username, display_name, role, household_id, password_hash, archived, created_at, updated_at`

func getUserTx(tx *sql.Tx, id int64) (*model.User, error) {
	row := tx.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func getUserByUsernameTx(tx *sql.Tx, username string) (*model.User, error) {
	row := tx.QueryRow(`SELECT `+userCols+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// isUniqueViolation detects the driver's UNIQUE constraint error so
// check-then-insert races surface as Conflict, not Internal.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts a new user. householdID may be nil for an unaffiliated
// user. Returns Conflict if the username is taken.
func (s *UserStore) Create(username, displayName, passwordHash string, householdID *int64, role string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (username, display_name, role, household_id, password_hash) VALUES (?, ?, ?, ?, ?)`,
		username, displayName, role, householdID, passwordHash,
	)
	if isUniqueViolation(err) {
		return nil, apperr.New(apperr.Conflict, "username already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// CreateWithHousehold inserts a new user together with a household they
// own, in one transaction. A failure on either insert commits nothing, so
// a registered user can never end up without a household.
func (s *UserStore) CreateWithHousehold(username, displayName, passwordHash string) (*model.User, error) {
	code, err := uniqueJoinCode(s.db)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	householdID, err := insertHouseholdTx(tx, displayName+"'s Household", code)
	if err != nil {
		return nil, err
	}

	result, err := tx.Exec(
		`INSERT INTO users (username, display_name, role, household_id, password_hash) VALUES (?, ?, 'owner', ?, ?)`,
		username, displayName, householdID, passwordHash,
	)
	if isUniqueViolation(err) {
		return nil, apperr.New(apperr.Conflict, "username already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByUsername(username string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// ProfilePatch is a sparse profile update; nil fields stay untouched.
type ProfilePatch struct {
	DisplayName     *string
	NewPasswordHash *string
}

// UpdateProfile applies a sparse patch over the fixed set of profile
// columns. Credential checks (old password) belong to the caller.
func (s *UserStore) UpdateProfile(userID int64, patch ProfilePatch) (*model.User, error) {
	sets := []string{}
	args := []any{}
	if patch.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *patch.DisplayName)
	}
	if patch.NewPasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *patch.NewPasswordHash)
	}
	if len(sets) == 0 {
		return nil, apperr.New(apperr.Validation, "nothing to update")
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, userID)

	result, err := s.db.Exec(`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ? AND archived = 0`, args...)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	return s.GetByID(userID)
}

// DeleteAccount hard-deletes a user in one transaction: the confirmation
// username must match exactly, the user's ledger rows are re-pointed to a
// placeholder, and ownership succession runs if they owned their household.
func (s *UserStore) DeleteAccount(userID int64, confirmUsername string) error {
	// Generated up front in case the placeholder needs a shared household;
	// unused codes cost nothing.
	code, err := uniqueJoinCode(s.db)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	user, err := getUserTx(tx, userID)
	if err != nil {
		return err
	}
	if user == nil || user.Archived {
		return apperr.New(apperr.NotFound, "user not found")
	}
	if user.Username != confirmUsername {
		return apperr.New(apperr.Validation, "confirmation username does not match")
	}

	placeholderID, err := placeholderUserTx(tx, user, code)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(
		`UPDATE inventory_transactions SET user_id = ? WHERE user_id = ?`,
		placeholderID, userID,
	); err != nil {
		return fmt.Errorf("reassign ledger rows: %w", err)
	}

	if err := promoteSuccessorTx(tx, user); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// placeholderUserTx finds or lazily creates the placeholder user that
// inherits a deleted user's ledger rows. One placeholder per household,
// looked up by its deterministic username so repeated deletions reuse it.
// Users with no household share a single placeholder in a dedicated
// "Deleted Users" household, created on first need with joinCode.
func placeholderUserTx(tx *sql.Tx, deleted *model.User, joinCode string) (int64, error) {
	var username string
	var householdID *int64

	if deleted.HouseholdID != nil {
		username = fmt.Sprintf("deleted-user-h%d", *deleted.HouseholdID)
		householdID = deleted.HouseholdID
	} else {
		username = "deleted-user-shared"
	}

	existing, err := getUserByUsernameTx(tx, username)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	if householdID == nil {
		id, err := insertHouseholdTx(tx, "Deleted Users", joinCode)
		if err != nil {
			return 0, err
		}
		householdID = &id
	}

	result, err := tx.Exec(
		`INSERT INTO users (username, display_name, role, household_id, password_hash, archived)
		 VALUES (?, 'Deleted User', 'system', ?, '', 1)`,
		username, householdID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert placeholder user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

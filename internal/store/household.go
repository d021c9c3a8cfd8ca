package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dorholt/larder/internal/apperr"
	"github.com/dorholt/larder/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.Name, &h.JoinCode, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const householdCols = `id, name, join_code, created_at, updated_at`

// Join codes avoid 0/O/1/I/L to survive being read aloud.
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const joinCodeLength = 6

func randomJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}

// uniqueJoinCode generates a join code not currently held by any household,
// retrying on collision. The UNIQUE constraint on join_code remains the
// final guard against a concurrent insert of the same code.
func uniqueJoinCode(db *sql.DB) (string, error) {
	var code string
	backoff := retry.WithMaxRetries(10, retry.NewConstant(time.Millisecond))
	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		c, err := randomJoinCode()
		if err != nil {
			return err
		}
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM households WHERE join_code = ?`, c).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return retry.RetryableError(fmt.Errorf("join code %s taken", c))
		}
		code = c
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	return code, nil
}

// insertHouseholdTx inserts a household row. A join code that collides
// despite the pre-check in uniqueJoinCode hits the UNIQUE constraint and
// surfaces as Conflict, not as a raw driver error.
func insertHouseholdTx(tx *sql.Tx, name, code string) (int64, error) {
	result, err := tx.Exec(`INSERT INTO households (name, join_code) VALUES (?, ?)`, name, code)
	if isUniqueViolation(err) {
		return 0, apperr.New(apperr.Conflict, "join code already in use")
	}
	if err != nil {
		return 0, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *HouseholdStore) GetByID(id int64) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) GetByJoinCode(code string) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE join_code = ?`, code)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household by join code: %w", err)
	}
	return h, nil
}

// Summary returns the household with its active member and food item counts.
func (s *HouseholdStore) Summary(householdID int64) (*model.HouseholdSummary, error) {
	row := s.db.QueryRow(
		`SELECT h.id, h.name, h.join_code,
		        (SELECT COUNT(*) FROM users u WHERE u.household_id = h.id AND u.archived = 0 AND u.role != 'system'),
		        (SELECT COUNT(*) FROM food_items fi WHERE fi.household_id = h.id AND fi.archived = 0)
		 FROM households h
		 WHERE h.id = ?`,
		householdID,
	)
	var sum model.HouseholdSummary
	err := row.Scan(&sum.ID, &sum.Name, &sum.JoinCode, &sum.MemberCount, &sum.FoodItemCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("household summary: %w", err)
	}
	return &sum, nil
}

// ListMembers returns the active, non-placeholder users of a household,
// oldest first.
func (s *HouseholdStore) ListMembers(householdID int64) ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT `+userCols+` FROM users
		 WHERE household_id = ? AND archived = 0 AND role != 'system'
		 ORDER BY created_at ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *u)
	}
	return members, rows.Err()
}

// CreateForUser creates a new household owned by the user. If the user
// currently owns another household, succession runs there first; the net
// effect is a move, never membership in two households.
func (s *HouseholdStore) CreateForUser(userID int64, name string) (*model.Household, error) {
	code, err := uniqueJoinCode(s.db)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	user, err := getUserTx(tx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Archived {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}

	if name == "" {
		name = user.DisplayName + "'s Household"
	}

	if err := promoteSuccessorTx(tx, user); err != nil {
		return nil, err
	}

	householdID, err := insertHouseholdTx(tx, name, code)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(
		`UPDATE users SET household_id = ?, role = 'owner', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		householdID, userID,
	); err != nil {
		return nil, fmt.Errorf("assign owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(householdID)
}

// Join moves the user into the household matching the join code.
func (s *HouseholdStore) Join(userID int64, code string) (*model.Household, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+householdCols+` FROM households WHERE join_code = ?`, code)
	household, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "invalid join code")
	}
	if err != nil {
		return nil, fmt.Errorf("find household by code: %w", err)
	}

	user, err := getUserTx(tx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Archived {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	if user.HouseholdID != nil && *user.HouseholdID == household.ID {
		return nil, apperr.New(apperr.Conflict, "already a member of this household")
	}

	if err := promoteSuccessorTx(tx, user); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(
		`UPDATE users SET household_id = ?, role = 'member', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		household.ID, userID,
	); err != nil {
		return nil, fmt.Errorf("join household: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return household, nil
}

// RemoveMember detaches a member from the requester's household. The
// removed user is never left unaffiliated: they get a fresh single-member
// household of their own, which they own.
func (s *HouseholdStore) RemoveMember(requesterID int64, username string) error {
	code, err := uniqueJoinCode(s.db)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	requester, err := getUserTx(tx, requesterID)
	if err != nil {
		return err
	}
	if requester == nil || requester.Archived {
		return apperr.New(apperr.NotFound, "user not found")
	}
	if requester.Role != model.RoleOwner || requester.HouseholdID == nil {
		return apperr.New(apperr.Forbidden, "only the household owner can remove members")
	}

	target, err := getUserByUsernameTx(tx, username)
	if err != nil {
		return err
	}
	if target == nil || target.Archived || target.HouseholdID == nil || *target.HouseholdID != *requester.HouseholdID {
		return apperr.New(apperr.NotFound, "user not found in household")
	}
	if target.ID == requester.ID {
		return apperr.New(apperr.Validation, "cannot remove yourself; dissolve or leave instead")
	}

	newHouseholdID, err := insertHouseholdTx(tx, target.DisplayName+"'s Household", code)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(
		`UPDATE users SET household_id = ?, role = 'owner', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newHouseholdID, target.ID,
	); err != nil {
		return fmt.Errorf("detach member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Dissolve clears household affiliation for every member, owner included,
// and resets their roles. The household row itself persists, orphaned.
func (s *HouseholdStore) Dissolve(userID int64) error {
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
	if user.Role != model.RoleOwner || user.HouseholdID == nil {
		return apperr.New(apperr.Forbidden, "only the household owner can dissolve it")
	}

	if _, err := tx.Exec(
		`UPDATE users SET household_id = NULL, role = 'member', updated_at = CURRENT_TIMESTAMP
		 WHERE household_id = ? AND role != 'system'`,
		*user.HouseholdID,
	); err != nil {
		return fmt.Errorf("dissolve household: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// promoteSuccessorTx runs the ownership succession rule for a user about to
// leave their household: if they are the owner and other active members
// remain, the longest-standing member becomes owner. A household with no
// members left simply ends up with no owner.
func promoteSuccessorTx(tx *sql.Tx, leaving *model.User) error {
	if leaving.Role != model.RoleOwner || leaving.HouseholdID == nil {
		return nil
	}
	_, err := tx.Exec(
		`UPDATE users SET role = 'owner', updated_at = CURRENT_TIMESTAMP
		 WHERE id = (
		     SELECT id FROM users
		     WHERE household_id = ? AND id != ? AND archived = 0 AND role != 'system'
		     ORDER BY created_at ASC, id ASC
		     LIMIT 1
		 )`,
		*leaving.HouseholdID, leaving.ID,
	)
	if err != nil {
		return fmt.Errorf("promote successor: %w", err)
	}
	return nil
}

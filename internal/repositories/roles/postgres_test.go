package roles

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/identitystore/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_ReturnsID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+roles\s*\(name\)\s*VALUES\s*\(\$1\)\s*RETURNING\s+id\s*$`

	mock.ExpectQuery(q).
		WithArgs("testRole").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	role, err := repo.Create(context.Background(), "testRole")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if role.ID != 7 || role.Name != "testRole" {
		t.Fatalf("unexpected role: %+v", role)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+roles`).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), "testRole")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByName_CaseInsensitive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*name\s+FROM\s+roles\s+WHERE\s+LOWER\(name\)\s*=\s*LOWER\(\$1\)\s*$`

	mock.ExpectQuery(q).
		WithArgs("TESTROLE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "testRole"))

	role, err := repo.GetByName(context.Background(), "TESTROLE")
	if err != nil {
		t.Fatalf("GetByName error: %v", err)
	}
	if role.Name != "testRole" {
		t.Fatalf("unexpected role: %+v", role)
	}
}

func TestGetByName_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,\s*name\s+FROM\s+roles`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByName(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestAddMember_Idempotent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+account_roles\s*\(account_id,\s*role_id\)\s*VALUES\s*\(\$1,\s*\$2\)\s*ON\s+CONFLICT\s+DO\s+NOTHING\s*$`

	// Второй insert не вставляет строку, но это не ошибка.
	mock.ExpectExec(q).WithArgs("u-1", int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("u-1", int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))

	for i := 0; i < 2; i++ {
		if err := repo.AddMember(context.Background(), "u-1", 7); err != nil {
			t.Fatalf("AddMember #%d error: %v", i+1, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRemoveMember(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+account_roles\s+WHERE\s+account_id\s*=\s*\$1\s+AND\s+role_id\s*=\s*\$2\s*$`

	mock.ExpectExec(q).WithArgs("u-1", int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RemoveMember(context.Background(), "u-1", 7); err != nil {
		t.Fatalf("RemoveMember error: %v", err)
	}
}

func TestMemberCount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)\s+FROM\s+account_roles\s+WHERE\s+role_id\s*=\s*\$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.MemberCount(context.Background(), 7)
	if err != nil {
		t.Fatalf("MemberCount error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 members, got %d", n)
	}
}

func TestIsMember(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+EXISTS\s*\(.+account_roles.+\)`).
		WithArgs("u-1", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	member, err := repo.IsMember(context.Background(), "u-1", 7)
	if err != nil {
		t.Fatalf("IsMember error: %v", err)
	}
	if !member {
		t.Fatalf("expected membership")
	}
}

func TestList_OrderedNames(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`^SELECT\s+name\s+FROM\s+roles\s+ORDER\s+BY\s+LOWER\(name\)$`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admins").AddRow("testRole"))

	names, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(names) != 2 || names[0] != "admins" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestFindUsernamesInRole_SubstringFilter(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)LOWER\(a\.username\)\s+LIKE\s+'%'\s*\|\|\s*LOWER\(\$2\)\s*\|\|\s*'%'`

	mock.ExpectQuery(q).
		WithArgs(int64(7), "F").
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("foo"))

	names, err := repo.FindUsernamesInRole(context.Background(), 7, "F")
	if err != nil {
		t.Fatalf("FindUsernamesInRole error: %v", err)
	}
	if len(names) != 1 || names[0] != "foo" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestFindUsernamesInRole_WildcardsAreLiteral(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// A bare _ must not match every one-character username.
	mock.ExpectQuery(`(?s)LOWER\(a\.username\)\s+LIKE`).
		WithArgs(int64(7), `\_`).
		WillReturnRows(sqlmock.NewRows([]string{"username"}))

	names, err := repo.FindUsernamesInRole(context.Background(), 7, "_")
	if err != nil {
		t.Fatalf("FindUsernamesInRole error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("unexpected names: %v", names)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRolesForAccount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+r\.name\s+FROM\s+roles\s+r\s+JOIN\s+account_roles`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("testRole"))

	names, err := repo.RolesForAccount(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("RolesForAccount error: %v", err)
	}
	if len(names) != 1 || names[0] != "testRole" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestDeleteMembers(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE\s+FROM\s+account_roles\s+WHERE\s+role_id\s*=\s*\$1$`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.DeleteMembers(context.Background(), 7); err != nil {
		t.Fatalf("DeleteMembers error: %v", err)
	}
}

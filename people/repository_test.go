package people

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petal-labs/petalpeople/store"
)

func newTestRepository(t *testing.T) (*Repository, *store.Gateway) {
	t.Helper()
	gw, err := store.New(store.Config{DSN: filepath.Join(t.TempDir(), "people.db")})
	require.NoError(t, err)
	return NewRepository(gw, nil), gw
}

func mustAdd(t *testing.T, repo *Repository, name string, age int64, profession string) Person {
	t.Helper()
	p, err := repo.AddPerson(context.Background(), NewPerson{Name: name, Age: age, Profession: profession})
	require.NoError(t, err)
	return p
}

func peopleFromRows(t *testing.T, rows []Row) []Person {
	t.Helper()
	out := make([]Person, 0, len(rows))
	for _, row := range rows {
		p, ok := personFromRow(row)
		require.True(t, ok, "row is not a full person: %v", row)
		out = append(out, p)
	}
	return out
}

// personFromRow converts a full people row back into a Person. It reports
// false when a column is missing or has an unexpected type.
func personFromRow(row Row) (Person, bool) {
	if row == nil {
		return Person{}, false
	}
	id, ok1 := row.Get("id")
	name, ok2 := row.Get("name")
	age, ok3 := row.Get("age")
	profession, ok4 := row.Get("profession")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Person{}, false
	}

	var p Person
	var ok bool
	if p.ID, ok = id.(int64); !ok {
		return Person{}, false
	}
	if p.Name, ok = name.(string); !ok {
		return Person{}, false
	}
	if p.Age, ok = age.(int64); !ok {
		return Person{}, false
	}
	if p.Profession, ok = profession.(string); !ok {
		return Person{}, false
	}
	return p, true
}

// readOnlyGateway hands out read-only sessions for writes, so every insert
// is refused by the store.
type readOnlyGateway struct{ *store.Gateway }

func (g readOnlyGateway) Open(ctx context.Context) (*store.Session, error) {
	return g.Gateway.OpenReadOnly(ctx)
}

func TestAddThenFindByName(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	added := mustAdd(t, repo, "Ada Lovelace", 36, "Mathematician")
	assert.EqualValues(t, 1, added.ID)

	got := peopleFromRows(t, repo.FindByName(ctx, "Ada"))
	want := []Person{{ID: 1, Name: "Ada Lovelace", Age: 36, Profession: "Mathematician"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FindByName mismatch (-want +got):\n%s", diff)
	}
}

func TestRowsMarshalInColumnOrder(t *testing.T) {
	repo, _ := newTestRepository(t)
	mustAdd(t, repo, "Ada Lovelace", 36, "Mathematician")

	data, err := json.Marshal(repo.FindByName(context.Background(), "Ada"))
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1,"name":"Ada Lovelace","age":36,"profession":"Mathematician"}]`, string(data))

	data, err = json.Marshal(repo.QueryPeople(context.Background(), "SELECT profession, name FROM people WHERE age > 30"))
	require.NoError(t, err)
	assert.Equal(t, `[{"profession":"Mathematician","name":"Ada Lovelace"}]`, string(data))
}

func TestGetAllPeopleAfterNAdds(t *testing.T) {
	repo, _ := newTestRepository(t)
	const n = 12
	for i := 0; i < n; i++ {
		mustAdd(t, repo, fmt.Sprintf("Person %02d", i), int64(20+i), "Tester")
	}

	all := peopleFromRows(t, repo.GetAllPeople(context.Background()))
	require.Len(t, all, n)
	seen := make(map[int64]bool, n)
	for _, p := range all {
		assert.False(t, seen[p.ID], "duplicate id %d", p.ID)
		seen[p.ID] = true
	}
}

func TestGetAllPeopleEmptyTable(t *testing.T) {
	repo, _ := newTestRepository(t)
	rows := repo.GetAllPeople(context.Background())
	require.NotNil(t, rows)
	assert.Empty(t, rows)

	data, err := json.Marshal(rows)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestFindByNameSubstringSemantics(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	mustAdd(t, repo, "Ada Lovelace", 36, "Mathematician")
	mustAdd(t, repo, "Alan Turing", 41, "Computer Scientist")
	mustAdd(t, repo, "Grace Hopper", 85, "Admiral")
	mustAdd(t, repo, "100% Real_Name", 30, "Wildcard")

	names := func(rows []Row) []string {
		out := make([]string, 0, len(rows))
		for _, p := range peopleFromRows(t, rows) {
			out = append(out, p.Name)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"Ada Lovelace", "Grace Hopper"}, names(repo.FindByName(ctx, "ace")))
	assert.ElementsMatch(t, []string{"Alan Turing"}, names(repo.FindByName(ctx, "Turing")))
	assert.Empty(t, repo.FindByName(ctx, "Nobody"))

	// Wildcards in the search text match literally.
	assert.Equal(t, []string{"100% Real_Name"}, names(repo.FindByName(ctx, "%")))
	assert.Equal(t, []string{"100% Real_Name"}, names(repo.FindByName(ctx, "l_N")))
	assert.Empty(t, repo.FindByName(ctx, "A_a"))
}

func TestFindByNameIsNotInjectable(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	mustAdd(t, repo, "Ada Lovelace", 36, "Mathematician")

	assert.Empty(t, repo.FindByName(ctx, "' OR '1'='1"))
	assert.Empty(t, repo.FindByName(ctx, "x%'; DROP TABLE people; --"))
	assert.Len(t, repo.GetAllPeople(ctx), 1)
}

func TestQueryPeopleInvalidStatementReturnsEmpty(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	mustAdd(t, repo, "Ada Lovelace", 36, "Mathematician")

	rows := repo.QueryPeople(ctx, "SELEC nonsense FROM")
	require.NotNil(t, rows)
	assert.Empty(t, rows)

	assert.Empty(t, repo.QueryPeople(ctx, "SELECT * FROM missing_table"))
}

func TestQueryPeopleRefusesMutation(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	mustAdd(t, repo, "Ada Lovelace", 36, "Mathematician")

	assert.Empty(t, repo.QueryPeople(ctx, "DELETE FROM people"))
	assert.Empty(t, repo.QueryPeople(ctx, "DROP TABLE people"))
	assert.Empty(t, repo.QueryPeople(ctx, "INSERT INTO people (name, age, profession) VALUES ('x', 1, 'y') RETURNING *"))
	assert.Empty(t, repo.QueryPeople(ctx, "UPDATE people SET age = age + 1 RETURNING *"))
	assert.Empty(t, repo.QueryPeople(ctx, "DELETE FROM people RETURNING name"))
	rows := repo.GetAllPeople(ctx)
	require.Len(t, rows, 1)
	age, _ := rows[0].Get("age")
	assert.Equal(t, int64(36), age)
}

func TestQueryPeopleDefaultsToAllRows(t *testing.T) {
	repo, _ := newTestRepository(t)
	mustAdd(t, repo, "Ada Lovelace", 36, "Mathematician")
	mustAdd(t, repo, "Alan Turing", 41, "Computer Scientist")
	assert.Len(t, repo.QueryPeople(context.Background(), "  "), 2)
}

func TestAddPersonRejectsEmptyFields(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.AddPerson(ctx, NewPerson{Name: " ", Age: 1, Profession: "x"})
	assert.True(t, errors.Is(err, ErrInvalidPerson), "err = %v", err)

	_, err = repo.AddPerson(ctx, NewPerson{Name: "x", Age: 1})
	assert.True(t, errors.Is(err, ErrInvalidPerson), "err = %v", err)

	assert.Empty(t, repo.GetAllPeople(ctx))
}

func TestAddPersonWriteFailure(t *testing.T) {
	_, gw := newTestRepository(t)
	repo := NewRepository(readOnlyGateway{gw}, nil)

	_, err := repo.AddPerson(context.Background(), NewPerson{Name: "Ada", Age: 36, Profession: "Mathematician"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailure), "err = %v", err)
	assert.Empty(t, repo.GetAllPeople(context.Background()))
}

func TestStoreUnavailable(t *testing.T) {
	gw, err := store.New(store.Config{DSN: t.TempDir()})
	require.NoError(t, err)
	repo := NewRepository(gw, nil)
	ctx := context.Background()

	_, err = repo.AddPerson(ctx, NewPerson{Name: "Ada", Age: 36, Profession: "Mathematician"})
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable), "err = %v", err)

	rows := repo.GetAllPeople(ctx)
	require.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestConcurrentReads(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	mustAdd(t, repo, "Seed", 1, "Seed")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows := repo.GetAllPeople(ctx)
			assert.NotNil(t, rows)
		}()
	}
	wg.Wait()
}

func TestConcurrentAdds(t *testing.T) {
	repo, gw := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, gw.Ping(ctx))

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.AddPerson(ctx, NewPerson{Name: fmt.Sprintf("Writer %02d", i), Age: int64(i), Profession: "Tester"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all := peopleFromRows(t, repo.GetAllPeople(ctx))
	require.Len(t, all, n)
	seen := make(map[int64]bool, n)
	for _, p := range all {
		assert.False(t, seen[p.ID], "duplicate id %d", p.ID)
		seen[p.ID] = true
	}
}

func TestPersonFromRow(t *testing.T) {
	repo, _ := newTestRepository(t)
	mustAdd(t, repo, "Ada Lovelace", 36, "Mathematician")

	rows := repo.QueryPeople(context.Background(), "SELECT name FROM people")
	require.Len(t, rows, 1)
	_, ok := personFromRow(rows[0])
	assert.False(t, ok)

	_, ok = personFromRow(nil)
	assert.False(t, ok)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}

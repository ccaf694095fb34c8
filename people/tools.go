package people

import (
	"context"

	"github.com/petal-labs/petalpeople/tool"
)

// Tool names exposed to remote callers.
const (
	ToolAddPerson        = "add_person"
	ToolGetPeople        = "get_people"
	ToolGetAllPeople     = "get_all_people"
	ToolFindPersonByName = "find_person_by_name"
)

// Descriptors returns the people tools bound to repo, in discovery order.
func Descriptors(repo *Repository) []tool.Descriptor {
	return []tool.Descriptor{
		{
			Name: ToolAddPerson,
			Description: "Insert a new record into the people table. " +
				"Returns a message describing whether the person was added.",
			Params: []tool.Param{
				{Name: "name", Type: tool.TypeString, Required: true, Description: "Full name of the person."},
				{Name: "age", Type: tool.TypeInteger, Required: true, Description: "Age in years."},
				{Name: "profession", Type: tool.TypeString, Required: true, Description: "Profession of the person."},
			},
			Returns: tool.ReturnsValue(tool.TypeString),
			Handler: func(ctx context.Context, args tool.Args) (tool.Result, error) {
				p, err := repo.AddPerson(ctx, NewPerson{
					Name:       args.String("name"),
					Age:        args.Int("age"),
					Profession: args.String("profession"),
				})
				if err != nil {
					return tool.Result{Value: AddFailedMessage(err), IsError: true}, nil
				}
				return tool.Result{Value: AddedMessage(p.Name)}, nil
			},
		},
		{
			Name: ToolGetPeople,
			Description: "Read rows from the people table with a SQL SELECT statement. " +
				"Defaults to all rows. Statements that modify the database are refused and return " +
				"no rows, including INSERT, UPDATE or DELETE with a RETURNING clause.",
			Params: []tool.Param{
				{Name: "query", Type: tool.TypeString, Default: DefaultQuery, Description: "SQL SELECT statement."},
			},
			Returns: tool.ReturnsList(tool.TypeObject),
			Handler: func(ctx context.Context, args tool.Args) (tool.Result, error) {
				return tool.Result{Value: repo.QueryPeople(ctx, args.String("query"))}, nil
			},
		},
		{
			Name:        ToolGetAllPeople,
			Description: "Return every person in the database.",
			Returns:     tool.ReturnsList(tool.TypeObject),
			Handler: func(ctx context.Context, _ tool.Args) (tool.Result, error) {
				return tool.Result{Value: repo.GetAllPeople(ctx)}, nil
			},
		},
		{
			Name:        ToolFindPersonByName,
			Description: "Find people whose name contains the given text.",
			Params: []tool.Param{
				{Name: "name", Type: tool.TypeString, Required: true, Description: "Text to search for within names."},
			},
			Returns: tool.ReturnsList(tool.TypeObject),
			Handler: func(ctx context.Context, args tool.Args) (tool.Result, error) {
				return tool.Result{Value: repo.FindByName(ctx, args.String("name"))}, nil
			},
		},
	}
}

// RegisterTools registers every people tool on reg.
func RegisterTools(reg *tool.Registry, repo *Repository) error {
	for _, d := range Descriptors(repo) {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

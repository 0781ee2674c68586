package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/candelahq/trellis/errors"
	"github.com/candelahq/trellis/flow"
)

// Definition rows (Project through Keyword) are written by seed routines
// and read-only to the engine, so this file has inserts and lookups but no
// updates beyond project status.

const (
	projectSelectColumns  = `id, name, COALESCE(description, ''), status, created_at, updated_at`
	templateSelectColumns = `id, project_id, type, name, COALESCE(text_en, ''), COALESCE(text_es, ''),
		COALESCE(variable_id, ''), choices_en, choices_es`
	nodeSelectColumns = `id, project_id, name, is_terminal, COALESCE(schedule_timing_id, ''),
		message_template_id, activation_type, COALESCE(activation_source_node_id, ''),
		COALESCE(activation_poll_template_id, ''), COALESCE(activation_datetime_var_id, ''),
		COALESCE(activation_start_var_id, '')`
	keywordSelectColumns = `id, project_id, COALESCE(name, ''), keyword_text, COALESCE(language, ''),
		action_type, COALESCE(referenced_node_id, ''), COALESCE(referenced_variable_id, '')`
)

// CreateProject inserts a project row
func (s *Queries) CreateProject(ctx context.Context, p *flow.Project) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nullString(p.Description), p.Status,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	return errors.Wrap(err, "failed to create project")
}

// GetProject retrieves a project by id
func (s *Queries) GetProject(ctx context.Context, id string) (*flow.Project, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+projectSelectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByName retrieves a project by its unique display name
func (s *Queries) GetProjectByName(ctx context.Context, name string) (*flow.Project, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+projectSelectColumns+` FROM projects WHERE name = ?`, name)
	return scanProject(row)
}

// ListProjects returns all projects ordered by name
func (s *Queries) ListProjects(ctx context.Context) ([]flow.Project, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+projectSelectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list projects")
	}
	defer rows.Close()

	var projects []flow.Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, errors.Wrap(rows.Err(), "failed to iterate projects")
}

func scanProject(row *sql.Row) (*flow.Project, error) {
	var p flow.Project
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("project not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get project")
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProjectRows(rows *sql.Rows) (*flow.Project, error) {
	var p flow.Project
	var createdAt, updatedAt string
	if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &createdAt, &updatedAt); err != nil {
		return nil, errors.Wrap(err, "failed to scan project")
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTimingElement inserts a timing element row
func (s *Queries) CreateTimingElement(ctx context.Context, t *flow.TimingElement) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO timing_elements (id, project_id, name, direction, days, hours, minutes, seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Name, t.Direction, t.Days, t.Hours, t.Minutes, t.Seconds,
	)
	return errors.Wrap(err, "failed to create timing element")
}

// GetTimingElement retrieves a timing element by id
func (s *Queries) GetTimingElement(ctx context.Context, id string) (*flow.TimingElement, error) {
	var t flow.TimingElement
	err := s.q.QueryRowContext(ctx, `
		SELECT id, project_id, name, direction, days, hours, minutes, seconds
		FROM timing_elements WHERE id = ?`, id).
		Scan(&t.ID, &t.ProjectID, &t.Name, &t.Direction, &t.Days, &t.Hours, &t.Minutes, &t.Seconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("timing element not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get timing element")
	}
	return &t, nil
}

// ListTimingElements returns a project's timing elements ordered by name
func (s *Queries) ListTimingElements(ctx context.Context, projectID string) ([]flow.TimingElement, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, project_id, name, direction, days, hours, minutes, seconds
		FROM timing_elements WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list timing elements")
	}
	defer rows.Close()

	var timings []flow.TimingElement
	for rows.Next() {
		var t flow.TimingElement
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Direction, &t.Days, &t.Hours, &t.Minutes, &t.Seconds); err != nil {
			return nil, errors.Wrap(err, "failed to scan timing element")
		}
		timings = append(timings, t)
	}
	return timings, errors.Wrap(rows.Err(), "failed to iterate timing elements")
}

// CreateVariable inserts a variable row
func (s *Queries) CreateVariable(ctx context.Context, v *flow.Variable) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO variables (id, project_id, name, type, source, is_system, is_agv)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ProjectID, v.Name, v.Type, nullString(v.Source), v.IsSystem, v.IsAGV,
	)
	return errors.Wrap(err, "failed to create variable")
}

// GetVariable retrieves a variable by id
func (s *Queries) GetVariable(ctx context.Context, id string) (*flow.Variable, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, project_id, name, type, COALESCE(source, ''), is_system, is_agv
		FROM variables WHERE id = ?`, id)
	return scanVariable(row)
}

// GetVariableByName retrieves a project's variable by name. The engine uses
// this for the system Start_Date variable on (re)activation.
func (s *Queries) GetVariableByName(ctx context.Context, projectID, name string) (*flow.Variable, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, project_id, name, type, COALESCE(source, ''), is_system, is_agv
		FROM variables WHERE project_id = ? AND name = ?`, projectID, name)
	return scanVariable(row)
}

func scanVariable(row *sql.Row) (*flow.Variable, error) {
	var v flow.Variable
	err := row.Scan(&v.ID, &v.ProjectID, &v.Name, &v.Type, &v.Source, &v.IsSystem, &v.IsAGV)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("variable not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get variable")
	}
	return &v, nil
}

// ListVariables returns a project's variables ordered by name
func (s *Queries) ListVariables(ctx context.Context, projectID string) ([]flow.Variable, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, project_id, name, type, COALESCE(source, ''), is_system, is_agv
		FROM variables WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list variables")
	}
	defer rows.Close()

	var variables []flow.Variable
	for rows.Next() {
		var v flow.Variable
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.Name, &v.Type, &v.Source, &v.IsSystem, &v.IsAGV); err != nil {
			return nil, errors.Wrap(err, "failed to scan variable")
		}
		variables = append(variables, v)
	}
	return variables, errors.Wrap(rows.Err(), "failed to iterate variables")
}

// VariablesByID loads the referenced variables into an id-keyed map, for
// handing to the condition evaluator.
func (s *Queries) VariablesByID(ctx context.Context, ids []string) (map[string]flow.Variable, error) {
	byID := make(map[string]flow.Variable, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			continue
		}
		v, err := s.GetVariable(ctx, id)
		if err != nil {
			return nil, err
		}
		byID[id] = *v
	}
	return byID, nil
}

// CreateMessageTemplate inserts a message template row. Choice lists are
// persisted as JSON arrays in TEXT columns.
func (s *Queries) CreateMessageTemplate(ctx context.Context, t *flow.MessageTemplate) error {
	choicesEN, choicesES, err := marshalChoices(t)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO message_templates (id, project_id, type, name, text_en, text_es, variable_id, choices_en, choices_es)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Type, t.Name,
		nullString(t.TextEN), nullString(t.TextES), nullString(t.VariableID),
		choicesEN, choicesES,
	)
	return errors.Wrap(err, "failed to create message template")
}

// GetMessageTemplate retrieves a message template by id
func (s *Queries) GetMessageTemplate(ctx context.Context, id string) (*flow.MessageTemplate, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+templateSelectColumns+` FROM message_templates WHERE id = ?`, id)

	var t flow.MessageTemplate
	var choicesEN, choicesES sql.NullString
	err := row.Scan(&t.ID, &t.ProjectID, &t.Type, &t.Name, &t.TextEN, &t.TextES,
		&t.VariableID, &choicesEN, &choicesES)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("message template not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get message template")
	}
	if err := unmarshalChoices(&t, choicesEN, choicesES); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListMessageTemplates returns a project's templates ordered by name
func (s *Queries) ListMessageTemplates(ctx context.Context, projectID string) ([]flow.MessageTemplate, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+templateSelectColumns+` FROM message_templates WHERE project_id = ? ORDER BY name`,
		projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list message templates")
	}
	defer rows.Close()

	var templates []flow.MessageTemplate
	for rows.Next() {
		var t flow.MessageTemplate
		var choicesEN, choicesES sql.NullString
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Type, &t.Name, &t.TextEN, &t.TextES,
			&t.VariableID, &choicesEN, &choicesES); err != nil {
			return nil, errors.Wrap(err, "failed to scan message template")
		}
		if err := unmarshalChoices(&t, choicesEN, choicesES); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, errors.Wrap(rows.Err(), "failed to iterate message templates")
}

func marshalChoices(t *flow.MessageTemplate) (en, es sql.NullString, err error) {
	if len(t.ChoicesEN) > 0 {
		raw, err := json.Marshal(t.ChoicesEN)
		if err != nil {
			return en, es, errors.Wrap(err, "failed to marshal english choices")
		}
		en = sql.NullString{String: string(raw), Valid: true}
	}
	if len(t.ChoicesES) > 0 {
		raw, err := json.Marshal(t.ChoicesES)
		if err != nil {
			return en, es, errors.Wrap(err, "failed to marshal spanish choices")
		}
		es = sql.NullString{String: string(raw), Valid: true}
	}
	return en, es, nil
}

func unmarshalChoices(t *flow.MessageTemplate, en, es sql.NullString) error {
	if en.Valid && en.String != "" {
		if err := json.Unmarshal([]byte(en.String), &t.ChoicesEN); err != nil {
			return errors.Wrapf(err, "malformed english choices for template %s", t.ID)
		}
	}
	if es.Valid && es.String != "" {
		if err := json.Unmarshal([]byte(es.String), &t.ChoicesES); err != nil {
			return errors.Wrapf(err, "malformed spanish choices for template %s", t.ID)
		}
	}
	return nil
}

// CreateNode inserts a node row, flattening the activation variant into
// the discriminator plus reference columns.
func (s *Queries) CreateNode(ctx context.Context, n *flow.Node) error {
	typ, sourceNodeID, pollTemplateID, dateTimeVarID, startVarID := flow.EncodeActivation(n.Activation)
	if typ == "" {
		return errors.Newf("node %s has no activation", n.ID)
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO nodes (id, project_id, name, is_terminal, schedule_timing_id, message_template_id,
			activation_type, activation_source_node_id, activation_poll_template_id,
			activation_datetime_var_id, activation_start_var_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ProjectID, n.Name, n.IsTerminal,
		nullString(n.ScheduleTimingID), n.MessageTemplateID,
		typ, nullString(sourceNodeID), nullString(pollTemplateID),
		nullString(dateTimeVarID), nullString(startVarID),
	)
	return errors.Wrap(err, "failed to create node")
}

// GetNode retrieves a node by id
func (s *Queries) GetNode(ctx context.Context, id string) (*flow.Node, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+nodeSelectColumns+` FROM nodes WHERE id = ?`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get node")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to get node")
		}
		return nil, errors.NewNotFoundError("node not found")
	}
	return scanNode(rows)
}

// ListNodesByActivation returns every node in the project whose activation
// has the given type and source reference: the source node id for
// after_node, the poll template id for after_poll, the variable id for
// after_datetime_var and start_date.
func (s *Queries) ListNodesByActivation(ctx context.Context, projectID string, typ flow.ActivationType, sourceID string) ([]flow.Node, error) {
	var refColumn string
	switch typ {
	case flow.ActivationAfterNode:
		refColumn = "activation_source_node_id"
	case flow.ActivationAfterPoll:
		refColumn = "activation_poll_template_id"
	case flow.ActivationAfterDateTimeVar:
		refColumn = "activation_datetime_var_id"
	case flow.ActivationStartDate:
		refColumn = "activation_start_var_id"
	default:
		return nil, errors.Newf("unknown activation type %q", typ)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+nodeSelectColumns+` FROM nodes
		 WHERE project_id = ? AND activation_type = ? AND `+refColumn+` = ?
		 ORDER BY name`,
		projectID, typ, sourceID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list nodes by activation")
	}
	defer rows.Close()
	return collectNodes(rows)
}

// ListStartDateNodes returns every start_date-activated node in the
// project, regardless of which variable anchors it.
func (s *Queries) ListStartDateNodes(ctx context.Context, projectID string) ([]flow.Node, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+nodeSelectColumns+` FROM nodes
		 WHERE project_id = ? AND activation_type = ?
		 ORDER BY name`,
		projectID, flow.ActivationStartDate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list start-date nodes")
	}
	defer rows.Close()
	return collectNodes(rows)
}

// ListNodes returns all nodes in a project ordered by name
func (s *Queries) ListNodes(ctx context.Context, projectID string) ([]flow.Node, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+nodeSelectColumns+` FROM nodes WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list nodes")
	}
	defer rows.Close()
	return collectNodes(rows)
}

// CountNodes returns the number of nodes in a project. Seed routines use
// this to skip projects that are already populated.
func (s *Queries) CountNodes(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE project_id = ?`, projectID).Scan(&count)
	return count, errors.Wrap(err, "failed to count nodes")
}

func scanNode(rows *sql.Rows) (*flow.Node, error) {
	var n flow.Node
	var typ, sourceNodeID, pollTemplateID, dateTimeVarID, startVarID string
	if err := rows.Scan(&n.ID, &n.ProjectID, &n.Name, &n.IsTerminal, &n.ScheduleTimingID,
		&n.MessageTemplateID, &typ, &sourceNodeID, &pollTemplateID, &dateTimeVarID, &startVarID); err != nil {
		return nil, errors.Wrap(err, "failed to scan node")
	}

	activation, err := flow.DecodeActivation(typ, sourceNodeID, pollTemplateID, dateTimeVarID, startVarID)
	if err != nil {
		return nil, errors.Wrapf(err, "node %s", n.ID)
	}
	n.Activation = activation
	return &n, nil
}

func collectNodes(rows *sql.Rows) ([]flow.Node, error) {
	var nodes []flow.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, errors.Wrap(rows.Err(), "failed to iterate nodes")
}

// CreateNodeCondition inserts a node condition row
func (s *Queries) CreateNodeCondition(ctx context.Context, c *flow.NodeCondition) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO node_conditions (id, node_id, variable_id, operation, expected_answer)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.NodeID, c.VariableID, c.Operation, nullString(c.ExpectedAnswer),
	)
	return errors.Wrap(err, "failed to create node condition")
}

// ListNodeConditions returns the conditions attached to a node
func (s *Queries) ListNodeConditions(ctx context.Context, nodeID string) ([]flow.NodeCondition, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, node_id, variable_id, operation, COALESCE(expected_answer, '')
		FROM node_conditions WHERE node_id = ?`, nodeID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list node conditions")
	}
	defer rows.Close()

	var conditions []flow.NodeCondition
	for rows.Next() {
		var c flow.NodeCondition
		if err := rows.Scan(&c.ID, &c.NodeID, &c.VariableID, &c.Operation, &c.ExpectedAnswer); err != nil {
			return nil, errors.Wrap(err, "failed to scan node condition")
		}
		conditions = append(conditions, c)
	}
	return conditions, errors.Wrap(rows.Err(), "failed to iterate node conditions")
}

// CreateKeyword inserts a keyword row
func (s *Queries) CreateKeyword(ctx context.Context, k *flow.Keyword) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO keywords (id, project_id, name, keyword_text, language, action_type,
			referenced_node_id, referenced_variable_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.ProjectID, nullString(k.Name), k.KeywordText, nullString(k.Language),
		k.Action, nullString(k.ReferencedNodeID), nullString(k.ReferencedVariableID),
	)
	return errors.Wrap(err, "failed to create keyword")
}

// FindKeyword looks up a keyword in the project by its lower-case text.
// Returns nil (not an error) when no keyword matches: missing keywords are
// the normal case for inbound texts that are poll answers.
func (s *Queries) FindKeyword(ctx context.Context, projectID, keywordText string) (*flow.Keyword, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+keywordSelectColumns+` FROM keywords
		 WHERE project_id = ? AND keyword_text = ?
		 LIMIT 1`,
		projectID, keywordText)

	var k flow.Keyword
	err := row.Scan(&k.ID, &k.ProjectID, &k.Name, &k.KeywordText, &k.Language,
		&k.Action, &k.ReferencedNodeID, &k.ReferencedVariableID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find keyword")
	}
	return &k, nil
}

// ListKeywords returns a project's keywords ordered by keyword text
func (s *Queries) ListKeywords(ctx context.Context, projectID string) ([]flow.Keyword, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+keywordSelectColumns+` FROM keywords WHERE project_id = ? ORDER BY keyword_text`,
		projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keywords")
	}
	defer rows.Close()

	var keywords []flow.Keyword
	for rows.Next() {
		var k flow.Keyword
		if err := rows.Scan(&k.ID, &k.ProjectID, &k.Name, &k.KeywordText, &k.Language,
			&k.Action, &k.ReferencedNodeID, &k.ReferencedVariableID); err != nil {
			return nil, errors.Wrap(err, "failed to scan keyword")
		}
		keywords = append(keywords, k)
	}
	return keywords, errors.Wrap(rows.Err(), "failed to iterate keywords")
}

// InsertDefinition persists a validated project definition in dependency
// order: project, timings, variables, templates, nodes, conditions,
// keywords. Callers run it inside WithTx so a half-written definition
// never becomes visible.
func (s *Queries) InsertDefinition(ctx context.Context, def *flow.ProjectDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	if err := s.CreateProject(ctx, &def.Project); err != nil {
		return err
	}
	for i := range def.Timings {
		if err := s.CreateTimingElement(ctx, &def.Timings[i]); err != nil {
			return err
		}
	}
	for i := range def.Variables {
		if err := s.CreateVariable(ctx, &def.Variables[i]); err != nil {
			return err
		}
	}
	for i := range def.Templates {
		if err := s.CreateMessageTemplate(ctx, &def.Templates[i]); err != nil {
			return err
		}
	}
	for i := range def.Nodes {
		if err := s.CreateNode(ctx, &def.Nodes[i]); err != nil {
			return err
		}
	}
	for i := range def.Conditions {
		if err := s.CreateNodeCondition(ctx, &def.Conditions[i]); err != nil {
			return err
		}
	}
	for i := range def.Keywords {
		if err := s.CreateKeyword(ctx, &def.Keywords[i]); err != nil {
			return err
		}
	}
	return nil
}

// Package ingest loads population work from local files: a request
// template describing the client, flow, and attribute set, plus item
// rows from JSONL or XLSX.
package ingest

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/pimstack/aipopulate/internal/model"
)

// templateFile is the YAML shape of a request template.
type templateFile struct {
	ClientID   string         `yaml:"client_id"`
	Flow       string         `yaml:"flow"`
	Language   string         `yaml:"language"`
	Attributes []attributeDef `yaml:"attributes"`
}

type attributeDef struct {
	ID          int64       `yaml:"id"`
	Code        string      `yaml:"code"`
	Label       string      `yaml:"label"`
	Description string      `yaml:"description"`
	ValueType   string      `yaml:"value_type"`
	Options     []optionDef `yaml:"options"`
}

type optionDef struct {
	Code  string `yaml:"code"`
	Value string `yaml:"value"`
}

// LoadTemplate reads a YAML request template. The returned request has no
// label; item rows supply one per item.
func LoadTemplate(path string) (*model.PopulateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read template")
	}
	var tpl templateFile
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, eris.Wrap(err, "ingest: parse template")
	}
	if tpl.ClientID == "" || tpl.Flow == "" {
		return nil, eris.New("ingest: template missing client_id or flow")
	}
	if len(tpl.Attributes) == 0 {
		return nil, eris.New("ingest: template has no attributes")
	}

	req := &model.PopulateRequest{
		ClientID: tpl.ClientID,
		Flow:     tpl.Flow,
		Language: tpl.Language,
	}
	for _, a := range tpl.Attributes {
		attr := model.Attribute{
			ID:          a.ID,
			Code:        a.Code,
			Label:       a.Label,
			Description: a.Description,
			ValueType:   model.ValueType(a.ValueType),
		}
		if len(a.Options) > 0 {
			opts := make([]model.AttributeOption, 0, len(a.Options))
			for _, o := range a.Options {
				opts = append(opts, model.AttributeOption{Code: o.Code, Value: o.Value})
			}
			attr.Settings = &model.AttributeSettings{Options: opts}
		}
		req.Attributes = append(req.Attributes, attr)
	}
	return req, nil
}

// jsonlLine is one item row in a JSONL input file.
type jsonlLine struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Language string `json:"language"`
}

// LoadJSONL reads item rows from a JSONL file and applies them to the
// template. Blank lines are skipped.
func LoadJSONL(path string, template model.PopulateRequest) ([]model.BatchItem[model.PopulateRequest], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open jsonl")
	}
	defer f.Close()

	var items []model.BatchItem[model.PopulateRequest]
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row jsonlLine
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, eris.Wrapf(err, "ingest: jsonl line %d", lineNo)
		}
		item, err := buildItem(template, row.ID, row.Label, row.Language, lineNo)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: scan jsonl")
	}
	return items, nil
}

// LoadXLSX reads item rows from the first sheet of an XLSX file. The
// header row names the columns; "id" and "label" are required, "language"
// is optional.
func LoadXLSX(path string, template model.PopulateRequest) ([]model.BatchItem[model.PopulateRequest], error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: xlsx has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("ingest: xlsx has no item rows")
	}

	cols := map[string]int{}
	for j, cell := range sheet.Rows[0].Cells {
		cols[strings.ToLower(strings.TrimSpace(cell.String()))] = j
	}
	idCol, ok := cols["id"]
	if !ok {
		return nil, eris.New("ingest: xlsx missing id column")
	}
	labelCol, ok := cols["label"]
	if !ok {
		return nil, eris.New("ingest: xlsx missing label column")
	}
	langCol, hasLang := cols["language"]

	var items []model.BatchItem[model.PopulateRequest]
	for i, row := range sheet.Rows[1:] {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if allEmpty(cells) {
			continue
		}
		language := ""
		if hasLang {
			language = cellAt(cells, langCol)
		}
		item, err := buildItem(template, cellAt(cells, idCol), cellAt(cells, labelCol), language, i+2)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func buildItem(template model.PopulateRequest, id, label, language string, lineNo int) (model.BatchItem[model.PopulateRequest], error) {
	if id == "" {
		return model.BatchItem[model.PopulateRequest]{}, eris.Errorf("ingest: row %d missing id", lineNo)
	}
	if label == "" {
		return model.BatchItem[model.PopulateRequest]{}, eris.Errorf("ingest: row %d missing label", lineNo)
	}
	req := template
	req.Label = label
	if language != "" {
		req.Language = language
	}
	return model.BatchItem[model.PopulateRequest]{ID: id, Body: req}, nil
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func allEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

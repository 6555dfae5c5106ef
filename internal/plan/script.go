package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"loadtest-engine/internal/config"
)

var scriptTemplate = template.Must(template.New("k6").Funcs(template.FuncMap{
	"js": jsString,
}).Parse(`import http from 'k6/http';
import { check, sleep } from 'k6';

export const options = {
  stages: [
{{- range .Stages}}
    { duration: {{js .Duration}}, target: {{.Target}} },
{{- end}}
  ],
};

export default function () {
  const params = {
    headers: {
{{- range .Headers}}
      {{js .Key}}: {{js .Value}},
{{- end}}
    },
  };
{{if eq .Func "get"}}
  const response = http.get({{js .URL}}, params);
{{- else}}
  const response = http.{{.Func}}({{js .URL}}, {{.Body}}, params);
{{- end}}

  check(response, {
    'status is 200': (r) => r.status === 200,
    'status is 2xx': (r) => r.status >= 200 && r.status < 300,
    'response time < 500ms': (r) => r.timings.duration < 500,
    'response time < 1000ms': (r) => r.timings.duration < 1000,
  });

  sleep(1);
}
`))

type scriptData struct {
	Stages  []Stage
	Headers []headerEntry
	Func    string
	URL     string
	Body    string
}

// k6Funcs maps methods to their k6/http helpers. delete is a reserved word, so k6 names it del.
var k6Funcs = map[config.Method]string{
	config.MethodGet:    "get",
	config.MethodPost:   "post",
	config.MethodPut:    "put",
	config.MethodPatch:  "patch",
	config.MethodDelete: "del",
}

type headerEntry struct {
	Key   string
	Value string
}

// Script renders the plan as a k6 script. Repeated header keys collapse to their last value.
func (p *Plan) Script() ([]byte, error) {
	if _, ok := k6Funcs[p.Method]; !ok {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidConfig, p.Method)
	}
	data := scriptData{
		Stages: p.Stages,
		Func:   k6Funcs[p.Method],
		URL:    p.FinalURL,
		Body:   "null",
	}

	index := make(map[string]int, len(p.Headers))
	for _, h := range p.Headers {
		if i, ok := index[h.Key]; ok {
			data.Headers[i].Value = h.Value
			continue
		}
		index[h.Key] = len(data.Headers)
		data.Headers = append(data.Headers, headerEntry{Key: h.Key, Value: h.Value})
	}

	if p.Body != nil {
		payload, err := p.Body.Payload()
		if err != nil {
			return nil, err
		}
		switch p.Body.Kind {
		case BodyJSON:
			data.Body = "JSON.stringify(" + payload + ")"
		default:
			data.Body = jsString(payload)
		}
	}

	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render k6 script: %w", err)
	}
	return buf.Bytes(), nil
}

// jsString quotes s as a JavaScript string literal. JSON strings are valid JS literals.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

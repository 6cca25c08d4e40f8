// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import "html/template"

var changesTemplate = template.Must(template.New("changes").Parse(`<html>
<body>
<h2>SVN repository changes detected</h2>
<p>The following changes were committed:</p>
{{- range .}}
<h3>{{.Heading}}</h3>
<table border="1" cellpadding="5" cellspacing="0">
<tr bgcolor="#f2f2f2"><th>Revision</th><th>Author</th><th>Date</th><th>Message</th><th>Change Type</th><th>Changed Files</th></tr>
{{- range .Changes}}
<tr>
<td>{{.Revision}}</td>
<td>{{.Author}}</td>
<td>{{.Date}}</td>
<td style="white-space: pre-wrap;">{{.Message}}</td>
<td style="color: {{.Type.Color}}; font-weight: bold;">{{.Type.Label}}</td>
<td style="white-space: normal; word-break: break-all; max-width: 500px;">
{{- if .Files}}<ul style="margin: 0; padding-left: 15px;">{{range .Files}}<li>{{.Action}}: {{.Path}}</li>{{end}}</ul>
{{- else}}<span style="color: #666;">No files listed in log</span>{{end -}}
</td>
</tr>
{{- end}}
</table>
<br>
{{- end}}
</body>
</html>
`))

var statusTemplate = template.Must(template.New("status").Parse(`<html>
<body>
<h2>SVN monitor status report</h2>
<p><strong>Checked at:</strong> {{.CheckedAt}}{{if .CycleID}} (cycle {{.CycleID}}){{end}}</p>
<h3>Summary</h3>
<table border="1" cellpadding="5" cellspacing="0">
<tr><td><strong>Repositories monitored</strong></td><td>{{.Total}}</td></tr>
<tr><td><strong>Repositories checked</strong></td><td>{{.Checked}}</td></tr>
<tr><td><strong>Repositories with changes</strong></td><td>{{.Changed}}</td></tr>
<tr><td><strong>Changes detected</strong></td><td>{{.TotalChanges}}</td></tr>
</table>
<h3>Repositories</h3>
<table border="1" cellpadding="5" cellspacing="0">
<tr bgcolor="#f2f2f2"><th>ID</th><th>Name</th><th>Status</th><th>Revision</th><th>Changes</th></tr>
{{- range .Repositories}}
<tr><td>{{.ID}}</td><td>{{.Name}}</td><td style="color: {{.Color}}; font-weight: bold;">{{.Label}}</td><td>{{.Revision}}</td><td>{{.Changes}}</td></tr>
{{- end}}
</table>
{{- if .Errors}}
<h3 style="color: red;">Errors</h3>
<table border="1" cellpadding="5" cellspacing="0">
<tr bgcolor="#f2f2f2"><th>Repository</th><th>Error</th></tr>
{{- range .Errors}}
<tr><td>{{.ID}}</td><td style="color: red;">{{.Error}}</td></tr>
{{- end}}
</table>
{{- end}}
<p><em>This message was sent automatically by svnmonitor. Please do not reply.</em></p>
</body>
</html>
`))

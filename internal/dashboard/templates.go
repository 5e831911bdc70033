package dashboard

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"
)

var funcMap = template.FuncMap{
	"upper": strings.ToUpper,
}

var pageTmpls = map[string]*template.Template{
	"overview":  template.Must(template.New("overview").Funcs(funcMap).Parse(navHTML + overviewHTML)),
	"incidents": template.Must(template.New("incidents").Funcs(funcMap).Parse(navHTML + incidentsHTML)),
	"policy":    template.Must(template.New("policy").Funcs(funcMap).Parse(navHTML + policyHTML)),
}

func renderPage(w http.ResponseWriter, name string, data map[string]any) {
	tmpl, ok := pageTmpls[name]
	if !ok {
		http.Error(w, "unknown page: "+name, http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

const navHTML = `{{define "nav"}}
<nav class="bg-gray-900 border-b border-gray-700 px-6 py-4">
    <div class="flex items-center justify-between max-w-7xl mx-auto">
        <div class="flex items-center space-x-2">
            <span class="text-xl font-bold text-white">Webward</span>
            <span class="text-xs bg-gray-700 text-gray-300 px-2 py-1 rounded">Dashboard</span>
        </div>
        <div class="flex space-x-4">
            <a href="/" class="px-3 py-2 rounded hover:bg-gray-800 {{if eq .Page "overview"}}bg-gray-800 text-white{{else}}text-gray-400{{end}}">Overview</a>
            <a href="/incidents" class="px-3 py-2 rounded hover:bg-gray-800 {{if eq .Page "incidents"}}bg-gray-800 text-white{{else}}text-gray-400{{end}}">Incidents</a>
            <a href="/policy" class="px-3 py-2 rounded hover:bg-gray-800 {{if eq .Page "policy"}}bg-gray-800 text-white{{else}}text-gray-400{{end}}">Policy</a>
        </div>
    </div>
</nav>
{{end}}`

const headHTML = `<!DOCTYPE html>
<html lang="en" class="dark">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Webward Dashboard</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <style>body { background-color: #0f172a; color: #e2e8f0; }</style>
</head>
<body class="min-h-screen">
{{template "nav" .}}
<main class="max-w-7xl mx-auto px-6 py-8">`

const footHTML = `</main>
</body>
</html>`

const overviewHTML = headHTML + `
<h1 class="text-2xl font-bold mb-6">Overview</h1>
<div class="grid grid-cols-1 md:grid-cols-3 gap-6 mb-8">
    <div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
        <div class="text-gray-400 text-sm mb-1">Total Incidents</div>
        <div class="text-3xl font-bold text-white">{{.Stats.Total}}</div>
    </div>
    <div class="bg-gray-900 border border-yellow-900 rounded-lg p-6">
        <div class="text-yellow-400 text-sm mb-1">Risk Score</div>
        <div class="text-3xl font-bold text-yellow-300">{{printf "%.2f" .Risk.Score}}</div>
        <div class="text-gray-400 text-sm mt-1">{{upper (printf "%s" .Risk.Level)}}</div>
    </div>
    <div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
        <div class="text-gray-400 text-sm mb-1">Current Action</div>
        <div class="text-xl font-bold text-white">{{.Risk.Action}}</div>
    </div>
</div>
<div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
    <h2 class="text-lg font-bold mb-4">By Type</h2>
    {{range $type, $count := .Stats.ByType}}
    <div class="flex justify-between py-1 border-b border-gray-800">
        <span class="text-gray-300 font-mono text-sm">{{$type}}</span>
        <span class="text-gray-400">{{$count}}</span>
    </div>
    {{else}}<p class="text-gray-500">No incidents yet</p>{{end}}
</div>
` + footHTML

const incidentsHTML = headHTML + `
<h1 class="text-2xl font-bold mb-6">Incidents</h1>
<table class="w-full text-sm">
    <thead>
        <tr class="text-left text-gray-400 border-b border-gray-700">
            <th class="py-2">Time</th><th>Type</th><th>Severity</th><th>Domain</th><th>Reason</th>
        </tr>
    </thead>
    <tbody>
        {{range .Incidents}}
        <tr class="border-b border-gray-800">
            <td class="py-2 text-gray-400">{{.Timestamp.Format "15:04:05"}}</td>
            <td class="font-mono">{{.Type}}</td>
            <td>{{.Severity}}</td>
            <td class="font-mono">{{.Domain}}</td>
            <td class="text-gray-400">{{.Reason}}</td>
        </tr>
        {{else}}<tr><td colspan="5" class="py-4 text-gray-500">No incidents recorded</td></tr>{{end}}
    </tbody>
</table>
` + footHTML

const policyHTML = headHTML + `
<h1 class="text-2xl font-bold mb-6">Active Policy</h1>
<div class="bg-gray-900 border border-gray-700 rounded-lg p-6 mb-6">
    <h2 class="text-lg font-bold mb-4">Temporary Allowances</h2>
    {{range .Allowances}}
    <div class="flex justify-between py-1 border-b border-gray-800">
        <span class="font-mono text-sm">{{.Domain}}</span>
        <span class="text-gray-400">expires {{.ExpiresAt.Format "15:04:05"}}</span>
    </div>
    {{else}}<p class="text-gray-500">None active</p>{{end}}
</div>
<pre class="bg-gray-900 border border-gray-700 rounded-lg p-6 text-sm overflow-x-auto">{{.PolicyYAML}}</pre>
` + footHTML

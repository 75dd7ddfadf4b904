package api

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/DavidDeeds/vsn300-pvoutput/internal/collector"

	"github.com/gin-gonic/gin"
)

type dashboardView struct {
	StatusText  string
	StatusClass string
	DQText      string
	DQClass     string
	PowerW      int
	EnergyToday string
	EnergyTotal string
	Voltage     string
	Temp        string
	Freq        string
	Mode        string
	LastPoll    string
	LastUpload  string
	Uptime      string
}

func (s *Server) dashboardHandler(c *gin.Context) {
	snap := s.collector.Snapshot()
	c.HTML(http.StatusOK, "dashboard", buildDashboardView(snap))
}

func buildDashboardView(snap collector.Snapshot) dashboardView {
	v := dashboardView{
		StatusText:  snap.StatusText,
		StatusClass: snap.StatusClass,
		DQText:      snap.DQText,
		DQClass:     snap.DQClass,
		EnergyToday: fmt.Sprintf("%.3f kWh", snap.EnergyTodayKWh),
		EnergyTotal: "—",
		Voltage:     "—",
		Temp:        "—",
		Freq:        "—",
		Mode:        "LIVE",
		LastPoll:    "—",
		LastUpload:  "—",
	}

	if n := len(snap.Records); n > 0 {
		v.PowerW = snap.Records[n-1].PowerW
	}
	if snap.EnergyTotalKWh != nil {
		v.EnergyTotal = fmt.Sprintf("%.3f kWh", *snap.EnergyTotalKWh)
	}
	if snap.ACVoltage != nil {
		v.Voltage = fmt.Sprintf("%.1f V", *snap.ACVoltage)
	}
	if snap.InverterTempC != nil {
		v.Temp = fmt.Sprintf("%.1f °C", *snap.InverterTempC)
	}
	if snap.GridFreqHz != nil {
		v.Freq = fmt.Sprintf("%.2f Hz", *snap.GridFreqHz)
	}
	if snap.DryRun {
		v.Mode = "DRY RUN"
	}
	if snap.LastSampleTS != nil {
		v.LastPoll = snap.LastSampleTS.Format("2006-01-02 15:04:05")
	}
	if snap.LastUpload != nil {
		v.LastUpload = snap.LastUpload.Format("2006-01-02 15:04:05")
	}

	total := time.Duration(snap.UptimeMinutes) * time.Minute
	v.Uptime = fmt.Sprintf("%dh %dm", int(total.Hours()), int(total.Minutes())%60)

	return v
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html><head>
<meta charset='utf-8'/>
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>VSN300 → PVOutput ({{.StatusText}})</title>
<script src='https://cdn.jsdelivr.net/npm/chart.js'></script>
<style>
body{font-family:system-ui;background:#0b1020;color:#e6ecff;margin:20px;}
.status{background:#121a33;border-radius:12px;padding:16px;max-width:320px;min-width:300px;}
.chart{background:#121a33;border-radius:16px;padding:16px;flex-grow:1;height:65vh;}
.pill{padding:2px 8px;border-radius:12px;font-size:12px;margin-left:6px;}
.ok{background:#14331a;color:#7fff9c;}
.sleep{background:#0f203a;color:#8fc5ff;}
.error{background:#3a0f0f;color:#ff6b6b;}
.muted{color:#9fb0ff;}
.night{background:#1e2233;color:#b0c8ff;}
.dq_ok{display:inline-block;width:10px;height:10px;border-radius:50%;background:#00ff88;margin-left:8px;}
.dq_warn{display:inline-block;width:10px;height:10px;border-radius:50%;background:#ffbb00;margin-left:8px;}
.dq_off{display:inline-block;width:10px;height:10px;border-radius:50%;background:#ff4444;margin-left:8px;}
</style></head><body>
<h2>
VSN300 → PVOutput
<span class='pill {{.StatusClass}}'>{{.StatusText}}</span>
<span class='{{.DQClass}}' title='Data Quality: {{.DQText}}'></span>
</h2>
<div style='display:flex;flex-wrap:wrap;gap:20px;align-items:flex-start;'>
<div class='status'>
<b>Power:</b> {{.PowerW}} W<br>
<b>Energy Today:</b> {{.EnergyToday}}<br>
<b>Lifetime Energy:</b> {{.EnergyTotal}}<br>
<b>AC Voltage:</b> {{.Voltage}}<br>
<b>Temp:</b> {{.Temp}}<br>
<b>Freq:</b> {{.Freq}}<br>
<b>PVOutput Mode:</b> {{.Mode}}<br>
<b>Last Poll:</b> {{.LastPoll}}<br>
<b>Last Upload:</b> {{.LastUpload}}<br>
<b>Uptime:</b> {{.Uptime}}<br>
<a href='/raw' style='color:#8fc5ff;'>Diagnostics / raw</a>
</div>
<div class='chart'><canvas id='c'></canvas></div></div>
<script>
let ch;
async function load(){const r=await fetch('/data');return r.json();}
function draw(l,p,e){
  if(!ch){
    ch = new Chart(document.getElementById('c'), {
      type: 'line',
      data: {
        labels: l,
        datasets: [
          {label:'Power (W)',data:p,yAxisID:'y',borderColor:'#5a8e56',tension:.25,fill:false},
          {label:'Energy (kWh)',data:e,yAxisID:'y1',borderColor:'#ccff69',backgroundColor:'#e1ffa5',tension:.3,fill:true}
        ]
      },
      options: {
        responsive:true,maintainAspectRatio:false,
        scales:{
          x:{ticks:{color:'#e6ecff'}},
          y:{beginAtZero:true,position:'left',ticks:{color:'#e6ecff'},title:{display:true,text:'Power (W)',color:'#e6ecff'}},
          y1:{beginAtZero:true,position:'right',grid:{drawOnChartArea:false},ticks:{color:'#e6ecff'},title:{display:true,text:'Energy (kWh)',color:'#e6ecff'}}
        },
        plugins:{
          legend:{labels:{color:'#e6ecff'}},
          title:{display:true,text:'Live Power and Energy',color:'#e6ecff'}
        }
      }
    });
  } else {
    ch.data.labels=l;
    ch.data.datasets[0].data=p;
    ch.data.datasets[1].data=e;
    ch.update();
  }
}
async function refresh(){
  const d = await load();
  const r = d.records || [];
  draw(
    r.map(x => (x.timestamp || '').slice(11,16)),
    r.map(x => x.power_w),
    r.map(x => (x.energy_wh || 0) / 1000)
  );
}
refresh();
setInterval(refresh,60000);
</script></body></html>`))

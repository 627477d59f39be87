//go:build windows

package collectors

import (
	"context"
	"fmt"
	"time"

	"github.com/breeze-rmm/startup-optimizer/internal/logging"
	"github.com/breeze-rmm/startup-optimizer/pkg/models"
)

// bootDiagScript reads the newest Diagnostics-Performance Event ID 100.
const bootDiagScript = `
$event = Get-WinEvent -FilterHashtable @{
    LogName='Microsoft-Windows-Diagnostics-Performance/Operational';
    Id=100
} -MaxEvents 1 -ErrorAction Stop
$xml = [xml]$event.ToXml()
$ns = New-Object Xml.XmlNamespaceManager($xml.NameTable)
$ns.AddNamespace('e','http://schemas.microsoft.com/win/2004/08/events/event')
$data = $xml.SelectNodes('//e:EventData/e:Data', $ns)
$obj = @{}
foreach ($d in $data) { $obj[$d.Name] = $d.'#text' }
@{
    TimeCreated      = $event.TimeCreated.ToUniversalTime().ToString('o')
    BootTime         = $obj['BootTime']
    MainPathBootTime = $obj['MainPathBootTime']
    BootPostBootTime = $obj['BootPostBootTime']
} | ConvertTo-Json -Compress
`

// diagnosticsBootEvents reads boot phases from the Diagnostics-Performance log.
type diagnosticsBootEvents struct {
	run      commandRunner
	bootTime func(ctx context.Context) (time.Time, error)
}

func (d *diagnosticsBootEvents) ReadBootEvents(ctx context.Context) ([]models.BootEvent, error) {
	out, err := d.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", bootDiagScript)
	if err != nil {
		return nil, fmt.Errorf("powershell boot diag query failed: %w", err)
	}
	boot, err := d.bootTime(ctx)
	if err != nil {
		log.Debug("boot timestamp unavailable", logging.KeyError, err)
	}
	return parseBootDiag(out, boot)
}

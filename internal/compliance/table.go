package compliance

import "github.com/evosec/cloudscan/internal/models"

// Table maps check identifiers to compliance framework controls. It is
// immutable after construction; Refs and Has never mutate state.
type Table struct {
	refs map[string][]models.ControlRef
}

// NewTable builds a Table from the given mapping. The map is copied so later
// mutation of the argument cannot leak into the table.
func NewTable(refs map[string][]models.ControlRef) *Table {
	m := make(map[string][]models.ControlRef, len(refs))
	for id, r := range refs {
		m[id] = append([]models.ControlRef(nil), r...)
	}
	return &Table{refs: m}
}

// Has reports whether checkID is registered in the table. Scanner
// registration validates every declared check against this, so per-finding
// lookups never pay a validation cost.
func (t *Table) Has(checkID string) bool {
	_, ok := t.refs[checkID]
	return ok
}

// Refs returns the framework controls mapped to checkID. It is total over
// the check-id domain: unknown ids return nil, registered ids may return an
// empty set.
func (t *Table) Refs(checkID string) []models.ControlRef {
	return t.refs[checkID]
}

// Size returns the number of registered check ids.
func (t *Table) Size() int { return len(t.refs) }

// NewDefaultTable returns the production mapping for the full check catalog.
// A check with an empty slice is registered but currently maps to no control.
func NewDefaultTable() *Table {
	return NewTable(map[string][]models.ControlRef{
		// identity
		"IAM_ROOT_ACCESS_KEY":      {cis("1.4"), nist("AC-6"), pci("7.1"), soc2("CC6.3"), wa("SEC02-BP01")},
		"IAM_ROOT_NO_MFA":          {cis("1.5"), nist("IA-2"), pci("8.3"), soc2("CC6.2"), wa("SEC02-BP02")},
		"IAM_USER_NO_MFA":          {cis("1.10"), nist("IA-2"), pci("8.3"), soc2("CC6.2"), wa("SEC02-BP02")},
		"IAM_STALE_ACCESS_KEY":     {cis("1.14"), nist("IA-5"), pci("8.2.4"), soc2("CC6.2")},
		"IAM_UNUSED_CREDENTIALS":   {cis("1.12"), nist("AC-2"), pci("8.1.4"), soc2("CC6.2")},
		"IAM_WEAK_PASSWORD_POLICY": {cis("1.8"), nist("IA-5"), pci("8.2"), soc2("CC6.2")},
		"IAM_NO_PASSWORD_POLICY":   {cis("1.8"), nist("IA-5"), pci("8.2"), soc2("CC6.2")},
		"IAM_WILDCARD_ADMIN_POLICY": {cis("1.16"), nist("AC-6"), pci("7.1"), soc2("CC6.3"), wa("SEC03-BP02")},
		"IAM_INLINE_POLICIES":      {nist("AC-6"), wa("SEC03-BP06")},
		"IAM_ACCESS_KEY_OVER_365D": {cis("1.14"), nist("IA-5"), pci("8.2.4")},
		"IAM_ROOT_NO_HARDWARE_MFA": {cis("1.6"), nist("IA-2"), soc2("CC6.2")},
		"IAM_NO_SUPPORT_ROLE":      {cis("1.17"), nist("IR-7")},

		// storage
		"S3_PUBLIC_POLICY":          {cis("2.1.2"), nist("AC-3"), pci("1.3"), lgpd("Art.46"), soc2("CC6.1"), wa("SEC01-BP02")},
		"S3_PUBLIC_ACL":             {cis("2.1.2"), nist("AC-3"), pci("1.3"), lgpd("Art.46"), soc2("CC6.1")},
		"S3_NO_DEFAULT_ENCRYPTION":  {cis("2.1.1"), nist("SC-28"), pci("3.4"), lgpd("Art.46"), soc2("C1.1")},
		"S3_NO_VERSIONING":          {cis("2.1.3"), nist("CP-9"), soc2("A1.2")},
		"S3_NO_ACCESS_LOGGING":      {cis("2.1.4"), nist("AU-2"), pci("10.1"), lgpd("Art.37")},
		"S3_NO_PUBLIC_ACCESS_BLOCK": {cis("2.1.2"), nist("AC-3"), pci("1.3"), soc2("CC6.1")},
		"S3_INSECURE_TRANSPORT":     {nist("SC-8"), pci("4.1"), lgpd("Art.46"), soc2("CC6.7")},
		"S3_NO_MFA_DELETE":          {nist("CP-9"), soc2("A1.2")},
		"S3_NO_LIFECYCLE":           {wa("SUS04-BP03")},
		"S3_REPLICATION_UNENCRYPTED": {nist("SC-8"), pci("4.1"), lgpd("Art.46")},

		// compute
		"EC2_PUBLIC_AMI":             {nist("AC-3"), soc2("CC6.1")},
		"EC2_UNENCRYPTED_EBS":        {cis("2.2.1"), nist("SC-28"), pci("3.4"), lgpd("Art.46"), soc2("C1.1")},
		"EC2_IMDSV1_ENABLED":         {cis("5.6"), nist("AC-3"), wa("SEC06-BP02")},
		"EC2_PUBLIC_IP":              {nist("SC-7"), pci("1.3"), wa("SEC05-BP01")},
		"EC2_NO_DETAILED_MONITORING": {nist("AU-2"), soc2("CC7.2")},
		"EC2_DEFAULT_VPC":            {nist("CM-6"), wa("SEC05-BP01")},
		"EC2_UNATTACHED_EIP":         {},
		"EC2_LEGACY_INSTANCE_TYPE":   {},

		// network
		"VPC_SSH_OPEN_TO_WORLD":    {cis("5.2"), nist("SC-7"), pci("1.2"), soc2("CC6.6"), wa("SEC05-BP02")},
		"VPC_RDP_OPEN_TO_WORLD":    {cis("5.3"), nist("SC-7"), pci("1.2"), soc2("CC6.6"), wa("SEC05-BP02")},
		"VPC_ALL_PORTS_OPEN":       {cis("5.2"), nist("SC-7"), pci("1.2"), soc2("CC6.6")},
		"VPC_FLOW_LOGS_DISABLED":   {cis("3.9"), nist("AU-2"), pci("10.1"), soc2("CC7.2")},
		"VPC_DEFAULT_SG_IN_USE":    {cis("5.4"), nist("CM-6"), soc2("CC6.6")},
		"VPC_NACL_ALLOW_ALL":       {nist("SC-7"), pci("1.2")},
		"VPC_BROAD_PEERING":        {nist("AC-4"), wa("SEC05-BP01")},
		"VPC_UNUSED_SECURITY_GROUP": {},

		// database
		"RDS_UNENCRYPTED":            {cis("2.3.1"), nist("SC-28"), pci("3.4"), lgpd("Art.46"), soc2("C1.1")},
		"RDS_PUBLIC_INSTANCE":        {nist("AC-3"), pci("1.3"), lgpd("Art.46"), soc2("CC6.1"), wa("SEC05-BP01")},
		"RDS_NO_MULTI_AZ":            {nist("CP-10"), soc2("A1.1"), wa("REL10-BP02")},
		"RDS_BACKUPS_DISABLED":       {nist("CP-9"), pci("12.10"), soc2("A1.2")},
		"RDS_SHORT_BACKUP_RETENTION": {nist("CP-9"), soc2("A1.2")},
		"RDS_NO_DELETION_PROTECTION": {nist("CM-6"), soc2("A1.2")},
		"RDS_DEFAULT_PORT":           {nist("CM-7")},
		"RDS_AUTO_MINOR_UPGRADE_OFF": {nist("SI-2"), pci("6.2")},
		"RDS_NO_PERFORMANCE_INSIGHTS": {},

		// serverless
		"LAMBDA_WILDCARD_POLICY":        {nist("AC-3"), pci("7.1"), soc2("CC6.3")},
		"LAMBDA_UNENCRYPTED_ENV":        {nist("SC-28"), pci("3.4"), lgpd("Art.46")},
		"LAMBDA_DEPRECATED_RUNTIME":     {nist("SI-2"), pci("6.2"), soc2("CC8.1")},
		"LAMBDA_NO_DLQ":                 {wa("REL04-BP02")},
		"LAMBDA_NO_VPC":                 {nist("SC-7")},
		"LAMBDA_NO_RESERVED_CONCURRENCY": {wa("REL05-BP03")},

		// audit trail
		"CLOUDTRAIL_NO_MULTI_REGION":    {cis("3.1"), nist("AU-2"), pci("10.1"), lgpd("Art.37"), soc2("CC7.2"), wa("SEC04-BP01")},
		"CLOUDTRAIL_LOG_VALIDATION_OFF": {cis("3.2"), nist("AU-9"), pci("10.5"), soc2("CC7.2")},
		"CLOUDTRAIL_NO_KMS":             {cis("3.5"), nist("SC-28"), pci("3.4")},
		"CLOUDTRAIL_NO_CW_LOGS":         {cis("3.4"), nist("AU-2"), soc2("CC7.2")},
		"CLOUDTRAIL_NO_DATA_EVENTS":     {cis("3.8"), nist("AU-2"), lgpd("Art.37")},

		// logging & monitoring
		"CW_NO_UNAUTHORIZED_API_ALARM": {cis("4.1"), nist("AU-6"), pci("10.2"), soc2("CC7.2")},
		"CW_NO_ROOT_USAGE_ALARM":       {cis("4.3"), nist("AU-6"), pci("10.2"), soc2("CC7.2")},
		"CW_NO_CONSOLE_NO_MFA_ALARM":   {cis("4.2"), nist("AU-6"), soc2("CC7.2")},
		"CW_LOG_GROUP_NO_RETENTION":    {nist("AU-11"), lgpd("Art.16")},
		"CW_LOG_GROUP_UNENCRYPTED":     {nist("SC-28"), pci("3.4"), lgpd("Art.46")},
		"CW_NO_NACL_CHANGE_ALARM":      {cis("4.11"), nist("AU-6")},

		// key management
		"KMS_ROTATION_DISABLED":   {cis("3.6"), nist("SC-12"), pci("3.6"), soc2("CC6.1")},
		"KMS_KEY_PENDING_DELETION": {nist("SC-12"), soc2("A1.2")},
		"KMS_WIDE_KEY_POLICY":     {nist("AC-3"), pci("7.1"), soc2("CC6.3")},
		"KMS_UNUSED_KEY":          {},
		"KMS_NO_ALIAS":            {},

		// secrets
		"SECRETS_ROTATION_DISABLED": {nist("IA-5"), pci("8.2.4"), soc2("CC6.1")},
		"SECRETS_UNUSED":            {nist("AC-2"), soc2("CC6.2")},
		"SECRETS_NO_CMK":            {nist("SC-28"), pci("3.4")},
		"SECRETS_WIDE_POLICY":       {nist("AC-3"), pci("7.1"), soc2("CC6.3")},

		// threat detection
		"GUARDDUTY_NOT_ENABLED":       {nist("SI-4"), pci("10.2"), soc2("CC7.1"), wa("SEC04-BP01")},
		"GUARDDUTY_SUSPENDED":         {nist("SI-4"), soc2("CC7.1")},
		"GUARDDUTY_NO_EXPORT":         {nist("AU-6"), soc2("CC7.3")},
		"GUARDDUTY_S3_PROTECTION_OFF": {nist("SI-4"), lgpd("Art.46")},

		// configuration recording
		"CONFIG_RECORDER_ABSENT":  {cis("3.3"), nist("CM-6"), soc2("CC7.1"), wa("SEC04-BP02")},
		"CONFIG_RECORDER_STOPPED": {cis("3.3"), nist("CM-6"), soc2("CC7.1")},
		"CONFIG_PARTIAL_COVERAGE": {nist("CM-6")},

		// edge / CDN
		"CF_NO_HTTPS":                  {nist("SC-8"), pci("4.1"), lgpd("Art.46"), soc2("CC6.7")},
		"CF_LEGACY_TLS":                {nist("SC-8"), pci("4.1"), soc2("CC6.7")},
		"CF_NO_WAF":                    {nist("SC-7"), pci("6.5"), wa("SEC05-BP03")},
		"CF_LOGGING_DISABLED":          {nist("AU-2"), pci("10.1"), lgpd("Art.37")},
		"CF_NO_ORIGIN_FAILOVER":        {wa("REL10-BP01")},
		"CF_NO_FIELD_LEVEL_ENCRYPTION": {nist("SC-28"), lgpd("Art.46")},

		// container orchestration
		"EKS_PUBLIC_ENDPOINT":           {nist("SC-7"), pci("1.3"), wa("SEC05-BP01")},
		"EKS_CONTROL_PLANE_LOGGING_OFF": {nist("AU-2"), pci("10.1"), soc2("CC7.2")},
		"EKS_SECRETS_NOT_ENCRYPTED":     {nist("SC-28"), pci("3.4"), lgpd("Art.46")},
		"EKS_OUTDATED_VERSION":          {nist("SI-2"), pci("6.2"), soc2("CC8.1")},
		"EKS_OPEN_PUBLIC_CIDR":          {nist("SC-7"), pci("1.2"), soc2("CC6.6")},
		"EKS_NO_OIDC":                   {nist("IA-2")},

		// search / indexing
		"OS_NOT_IN_VPC":                 {nist("SC-7"), pci("1.3"), wa("SEC05-BP01")},
		"OS_NO_ENCRYPTION_AT_REST":      {nist("SC-28"), pci("3.4"), lgpd("Art.46"), soc2("C1.1")},
		"OS_NO_NODE_TO_NODE_ENCRYPTION": {nist("SC-8"), pci("4.1")},
		"OS_NO_AUDIT_LOGS":              {nist("AU-2"), pci("10.1"), lgpd("Art.37")},
		"OS_LEGACY_TLS_POLICY":          {nist("SC-8"), pci("4.1"), soc2("CC6.7")},
		"OS_UNSIGNED_REQUESTS":          {nist("IA-2"), soc2("CC6.1")},

		// messaging
		"SNS_TOPIC_UNENCRYPTED": {nist("SC-28"), pci("3.4"), lgpd("Art.46")},
		"SNS_TOPIC_PUBLIC":      {nist("AC-3"), pci("1.3"), soc2("CC6.1")},
		"SNS_HTTP_SUBSCRIPTION": {nist("SC-8"), pci("4.1")},
		"SNS_WILDCARD_POLICY":   {nist("AC-3"), pci("7.1"), soc2("CC6.3")},
		"SQS_QUEUE_UNENCRYPTED": {nist("SC-28"), pci("3.4"), lgpd("Art.46")},
		"SQS_QUEUE_PUBLIC":      {nist("AC-3"), pci("1.3"), soc2("CC6.1")},
		"SQS_WILDCARD_POLICY":   {nist("AC-3"), pci("7.1"), soc2("CC6.3")},
		"SQS_NO_DLQ":            {wa("REL04-BP02")},

		// nosql
		"DDB_NO_CMK":                 {nist("SC-28"), lgpd("Art.46")},
		"DDB_PITR_DISABLED":          {nist("CP-9"), soc2("A1.2")},
		"DDB_NO_BACKUPS":             {nist("CP-9"), pci("12.10"), soc2("A1.2")},
		"DDB_TTL_WITHOUT_PITR":       {},
		"DDB_PUBLIC_GATEWAY_POLICY":  {nist("AC-3"), pci("1.3")},

		// file storage
		"EFS_UNENCRYPTED":       {nist("SC-28"), pci("3.4"), lgpd("Art.46"), soc2("C1.1")},
		"EFS_OPEN_MOUNT_TARGET": {nist("SC-7"), pci("1.2"), soc2("CC6.6")},
		"EFS_NO_BACKUP_POLICY":  {nist("CP-9"), soc2("A1.2")},

		// load balancing
		"ELB_NO_HTTPS_LISTENER":       {nist("SC-8"), pci("4.1"), lgpd("Art.46"), soc2("CC6.7")},
		"ELB_LEGACY_TLS_POLICY":       {nist("SC-8"), pci("4.1"), soc2("CC6.7")},
		"ELB_NO_ACCESS_LOGS":          {nist("AU-2"), pci("10.1"), lgpd("Art.37")},
		"ELB_NO_DELETION_PROTECTION":  {nist("CM-6")},
		"ELB_IDLE_CLASSIC":            {},
		"ELB_NO_WAF":                  {nist("SC-7"), pci("6.5"), wa("SEC05-BP03")},
		"ELB_INVALID_HEADERS_ALLOWED": {nist("SI-10")},

		// api gateway
		"APIGW_NO_AUTHORIZER":     {nist("IA-2"), pci("8.2"), soc2("CC6.1")},
		"APIGW_NO_LOGGING":        {nist("AU-2"), pci("10.1"), lgpd("Art.37")},
		"APIGW_NO_WAF":            {nist("SC-7"), pci("6.5"), wa("SEC05-BP03")},
		"APIGW_NO_TLS_POLICY":     {nist("SC-8"), pci("4.1"), soc2("CC6.7")},
		"APIGW_CACHE_UNENCRYPTED": {nist("SC-28"), pci("3.4")},

		// registry
		"ECR_SCAN_ON_PUSH_OFF":    {nist("SI-2"), pci("6.2"), soc2("CC7.1"), wa("SEC06-BP01")},
		"ECR_MUTABLE_TAGS":        {nist("CM-6"), soc2("CC8.1")},
		"ECR_NO_LIFECYCLE_POLICY": {},
		"ECR_WILDCARD_POLICY":     {nist("AC-3"), pci("7.1"), soc2("CC6.3")},

		// warehouse
		"REDSHIFT_UNENCRYPTED":              {nist("SC-28"), pci("3.4"), lgpd("Art.46"), soc2("C1.1")},
		"REDSHIFT_PUBLIC":                   {nist("AC-3"), pci("1.3"), lgpd("Art.46"), soc2("CC6.1")},
		"REDSHIFT_NO_ENHANCED_VPC_ROUTING":  {nist("SC-7")},
		"REDSHIFT_SHORT_SNAPSHOT_RETENTION": {nist("CP-9"), soc2("A1.2")},
		"REDSHIFT_AUDIT_LOGGING_OFF":        {nist("AU-2"), pci("10.1"), lgpd("Art.37")},
		"REDSHIFT_DEFAULT_MASTER_USER":      {nist("CM-6")},

		// dns
		"R53_DANGLING_CNAME":   {nist("SC-20"), wa("SEC01-BP06")},
		"R53_NO_QUERY_LOGGING": {nist("AU-2"), lgpd("Art.37")},
		"R53_AUTO_RENEW_OFF":   {nist("CM-6")},

		// systems manager
		"SSM_PLAINTEXT_PARAMETER":  {nist("SC-28"), pci("3.4"), lgpd("Art.46")},
		"SSM_PATCH_NONCOMPLIANT":   {nist("SI-2"), pci("6.2"), soc2("CC7.1")},
		"SSM_SESSION_LOGGING_OFF":  {nist("AU-2"), pci("10.1")},
		"SSM_PUBLIC_DOCUMENT":      {nist("AC-3"), soc2("CC6.1")},
	})
}

// Package arn builds canonical AWS resource identifiers.
//
// All builders are pure functions over their inputs: calling a builder twice
// with the same descriptor always yields an identical string. Builders never
// validate that the referenced resource exists.
package arn

import "fmt"

// partition is fixed to the commercial AWS partition. GovCloud and China
// partitions are not supported by the engine.
const partition = "aws"

// Build constructs a generic ARN of the form
// arn:aws:<service>:<region>:<account>:<resource>.
// Global services pass empty region and/or account segments.
func Build(service, region, account, resource string) string {
	return fmt.Sprintf("arn:%s:%s:%s:%s:%s", partition, service, region, account, resource)
}

// Bucket returns the ARN for an S3 bucket. S3 ARNs carry no region or
// account segment.
func Bucket(name string) string {
	return Build("s3", "", "", name)
}

// IAMUser returns the ARN for an IAM user. IAM is global: no region segment.
func IAMUser(account, userName string) string {
	return Build("iam", "", account, "user/"+userName)
}

// IAMPolicy returns the ARN for a customer-managed IAM policy.
func IAMPolicy(account, policyName string) string {
	return Build("iam", "", account, "policy/"+policyName)
}

// RootAccount returns the ARN identifying the account root identity.
func RootAccount(account string) string {
	return Build("iam", "", account, "root")
}

// EC2Instance returns the ARN for an EC2 instance.
func EC2Instance(region, account, instanceID string) string {
	return Build("ec2", region, account, "instance/"+instanceID)
}

// EBSVolume returns the ARN for an EBS volume.
func EBSVolume(region, account, volumeID string) string {
	return Build("ec2", region, account, "volume/"+volumeID)
}

// SecurityGroup returns the ARN for an EC2 security group.
func SecurityGroup(region, account, groupID string) string {
	return Build("ec2", region, account, "security-group/"+groupID)
}

// VPC returns the ARN for a VPC.
func VPC(region, account, vpcID string) string {
	return Build("ec2", region, account, "vpc/"+vpcID)
}

// RDSInstance returns the ARN for an RDS database instance.
func RDSInstance(region, account, dbID string) string {
	return Build("rds", region, account, "db:"+dbID)
}

// LambdaFunction returns the ARN for a Lambda function.
func LambdaFunction(region, account, name string) string {
	return Build("lambda", region, account, "function:"+name)
}

// CloudTrail returns the ARN for a CloudTrail trail.
func CloudTrail(region, account, name string) string {
	return Build("cloudtrail", region, account, "trail/"+name)
}

// LogGroup returns the ARN for a CloudWatch Logs log group.
func LogGroup(region, account, name string) string {
	return Build("logs", region, account, "log-group:"+name)
}

// KMSKey returns the ARN for a KMS key.
func KMSKey(region, account, keyID string) string {
	return Build("kms", region, account, "key/"+keyID)
}

// Secret returns the ARN prefix for a Secrets Manager secret.
func Secret(region, account, name string) string {
	return Build("secretsmanager", region, account, "secret:"+name)
}

// GuardDutyDetector returns the ARN for a GuardDuty detector.
func GuardDutyDetector(region, account, detectorID string) string {
	return Build("guardduty", region, account, "detector/"+detectorID)
}

// Distribution returns the ARN for a CloudFront distribution. CloudFront is
// global: no region segment.
func Distribution(account, distributionID string) string {
	return Build("cloudfront", "", account, "distribution/"+distributionID)
}

// EKSCluster returns the ARN for an EKS cluster.
func EKSCluster(region, account, name string) string {
	return Build("eks", region, account, "cluster/"+name)
}

// OpenSearchDomain returns the ARN for an OpenSearch domain.
func OpenSearchDomain(region, account, name string) string {
	return Build("es", region, account, "domain/"+name)
}

// SNSTopic returns the ARN for an SNS topic.
func SNSTopic(region, account, name string) string {
	return Build("sns", region, account, name)
}

// SQSQueue returns the ARN for an SQS queue.
func SQSQueue(region, account, name string) string {
	return Build("sqs", region, account, name)
}

// DynamoDBTable returns the ARN for a DynamoDB table.
func DynamoDBTable(region, account, name string) string {
	return Build("dynamodb", region, account, "table/"+name)
}

// EFSFileSystem returns the ARN for an EFS file system.
func EFSFileSystem(region, account, fsID string) string {
	return Build("elasticfilesystem", region, account, "file-system/"+fsID)
}

// LoadBalancer returns the ARN for an ELBv2 load balancer given its
// full resource path (e.g. "loadbalancer/app/web/50dc6c495c0c9188").
func LoadBalancer(region, account, resourcePath string) string {
	return Build("elasticloadbalancing", region, account, resourcePath)
}

// APIGatewayRestAPI returns the ARN for an API Gateway REST API.
// API Gateway ARNs carry no account segment.
func APIGatewayRestAPI(region, apiID string) string {
	return Build("apigateway", region, "", "/restapis/"+apiID)
}

// ECRRepository returns the ARN for an ECR repository.
func ECRRepository(region, account, name string) string {
	return Build("ecr", region, account, "repository/"+name)
}

// RedshiftCluster returns the ARN for a Redshift cluster.
func RedshiftCluster(region, account, clusterID string) string {
	return Build("redshift", region, account, "cluster:"+clusterID)
}

// HostedZone returns the ARN for a Route 53 hosted zone. Route 53 is global:
// no region or account segment.
func HostedZone(zoneID string) string {
	return Build("route53", "", "", "hostedzone/"+zoneID)
}

// SSMParameter returns the ARN for an SSM parameter.
func SSMParameter(region, account, name string) string {
	return Build("ssm", region, account, "parameter/"+name)
}

// SSMDocument returns the ARN for an SSM document.
func SSMDocument(region, account, name string) string {
	return Build("ssm", region, account, "document/"+name)
}
